package persistence

import (
	"maps"
	"strconv"
	"strings"
)

// Unit property keys understood by the engine.
const (
	PropertyShowSQL     = "engine.show_sql"
	PropertyDatabase    = "engine.database"
	PropertyDialect     = "engine.dialect"
	PropertyGenerateDDL = "schema.generate_ddl"
	PropertyDDLAuto     = "schema.ddl_auto"
)

// VendorSettings are the engine settings applied to every unit.
type VendorSettings struct {
	ShowSQL          bool
	GenerateDDL      bool
	Database         string
	DatabasePlatform string
	// Properties are caller supplied and always win over inferred values.
	Properties map[string]string
}

// BuildProperties returns a fresh property map: explicit Properties first, then the
// inferred vendor values for keys that are still unset.
func (v VendorSettings) BuildProperties() map[string]any {
	props := make(map[string]any, len(v.Properties)+4)
	for k, val := range v.Properties {
		props[k] = val
	}

	setDefault(props, PropertyShowSQL, v.ShowSQL)
	setDefault(props, PropertyGenerateDDL, v.GenerateDDL)
	if v.Database != "" {
		setDefault(props, PropertyDatabase, v.Database)
	}
	if v.DatabasePlatform != "" {
		setDefault(props, PropertyDialect, v.DatabasePlatform)
	}

	return props
}

func setDefault(props map[string]any, key string, value any) {
	if _, ok := props[key]; !ok {
		props[key] = value
	}
}

// boolProperty reads a boolean property that may be a bool or a string.
func boolProperty(props map[string]any, key string) bool {
	switch v := props[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	default:
		return false
	}
}

// stringProperty reads a string property, empty when absent.
func stringProperty(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

// generatesDDL reports whether a build with props should execute DDL.
func generatesDDL(props map[string]any) bool {
	switch strings.ToLower(stringProperty(props, PropertyDDLAuto)) {
	case "create", "update":
		return true
	case "none", "validate":
		return false
	}
	return boolProperty(props, PropertyGenerateDDL)
}

func cloneProperties(props map[string]any) map[string]any {
	return maps.Clone(props)
}
