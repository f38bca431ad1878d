package gemini

// SimplifySchema rewrites a JSON Schema into the subset the
// generateContent API accepts:
//
//   - additionalProperties is stripped,
//   - array-valued types collapse to the first non-null entry
//     (["string","null"] → "string"),
//   - unsupported string formats (uri, email, …) are removed while
//     date-time and enum survive,
//   - integer format uint64 renames to int64.
//
// The input is never mutated; nested properties, items, and
// definitions simplify recursively.
func SimplifySchema(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}

	out := make(map[string]any, len(schema))
	for key, value := range schema {
		switch key {
		case "additionalProperties":
			continue

		case "type":
			out[key] = simplifyType(value)

		case "format":
			format, ok := value.(string)
			if !ok {
				continue
			}
			switch format {
			case "date-time", "enum":
				out[key] = format
			case "uint64":
				out[key] = "int64"
			case "int32", "int64", "float", "double":
				out[key] = format
			default:
				// uri, email, uuid, hostname … — unsupported, dropped.
			}

		case "properties":
			props, ok := value.(map[string]any)
			if !ok {
				out[key] = value
				continue
			}
			simplified := make(map[string]any, len(props))
			for name, sub := range props {
				if subSchema, ok := sub.(map[string]any); ok {
					simplified[name] = SimplifySchema(subSchema)
				} else {
					simplified[name] = sub
				}
			}
			out[key] = simplified

		case "items", "contains":
			if subSchema, ok := value.(map[string]any); ok {
				out[key] = SimplifySchema(subSchema)
			} else {
				out[key] = value
			}

		case "anyOf", "oneOf", "allOf":
			if list, ok := value.([]any); ok {
				simplified := make([]any, 0, len(list))
				for _, sub := range list {
					if subSchema, ok := sub.(map[string]any); ok {
						simplified = append(simplified, SimplifySchema(subSchema))
					} else {
						simplified = append(simplified, sub)
					}
				}
				out[key] = simplified
			} else {
				out[key] = value
			}

		default:
			out[key] = value
		}
	}
	return out
}

// simplifyType collapses array-valued type declarations to the first
// non-null entry.
func simplifyType(value any) any {
	list, ok := value.([]any)
	if !ok {
		return value
	}
	for _, t := range list {
		if s, ok := t.(string); ok && s != "null" {
			return s
		}
	}
	return value
}
