// internal/models/service.go
package models

// ServiceConfig maps a service type to its category, fee, default priority and
// processing-time estimate. Read-only to the workflow engine; consumed at
// application creation.
type ServiceConfig struct {
	Type            string                 `json:"type" mapstructure:"type"`
	Name            string                 `json:"name" mapstructure:"name"`
	Category        string                 `json:"category" mapstructure:"category"`
	Fee             float64                `json:"fee" mapstructure:"fee"`
	DefaultPriority string                 `json:"defaultPriority" mapstructure:"default_priority"`
	ProcessingDays  int                    `json:"processingDays" mapstructure:"processing_days"`
	FormSchema      map[string]interface{} `json:"formSchema,omitempty" mapstructure:"form_schema"`
}
