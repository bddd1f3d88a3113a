package models

// SchemaConfigForType returns the extraction config implied by a field type.
// Link-like types read attributes instead of text; value types carry the
// transform that normalizes their raw text.
func SchemaConfigForType(fieldType string) SchemaFieldConfig {
	switch fieldType {
	case FieldTypeURL:
		return SchemaFieldConfig{Type: fieldType, Attribute: "href", Transform: "url"}
	case FieldTypeImage:
		return SchemaFieldConfig{Type: fieldType, Attribute: "src", Transform: "url"}
	case FieldTypeNumber:
		return SchemaFieldConfig{Type: fieldType, Transform: "number"}
	case FieldTypeBoolean:
		return SchemaFieldConfig{Type: fieldType, Transform: "boolean"}
	case FieldTypeDate:
		return SchemaFieldConfig{Type: fieldType, Transform: "trim"}
	default:
		return SchemaFieldConfig{Type: FieldTypeString, Transform: "trim"}
	}
}

// SchemaFromFields synthesizes a schema from plan key fields. Used when the
// model response carried no explicit schema block.
func SchemaFromFields(fields []FieldDefinition) map[string]SchemaFieldConfig {
	if len(fields) == 0 {
		return nil
	}
	schema := make(map[string]SchemaFieldConfig, len(fields))
	for _, f := range fields {
		schema[f.Name] = SchemaConfigForType(f.Type)
	}
	return schema
}
