package intake

// orderSchema is the JSON Schema raw intake payloads must satisfy before they
// are decoded into models.OrderData.
const orderSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["order_id", "customer", "product", "quantity"],
  "properties": {
    "order_id":       {"type": "string", "minLength": 1, "maxLength": 64},
    "customer":       {"type": "string", "minLength": 1},
    "product":        {"type": "string", "minLength": 1},
    "quantity":       {"type": "integer", "minimum": 1},
    "priority_score": {"type": "number"},
    "due_date":       {"type": ["string", "null"], "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
    "spec_ref":       {"type": "string"},
    "flags":          {"type": "array", "items": {"type": "string", "minLength": 1}}
  }
}`
