package schema

// FindColumn returns the column named name, or nil.
func (s *SchemaDefinition) FindColumn(name string) *ColumnDefinition {
	for i := range s.Columns {
		if s.Columns[i].Name == name {
			return &s.Columns[i]
		}
	}
	return nil
}
