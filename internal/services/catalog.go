// internal/services/catalog.go

// Package services holds the read-only service catalog the workflow consumes
// at application creation.
package services

import (
	"fmt"
	"strings"

	"eservices-portal/internal/models"

	"github.com/spf13/viper"
	"github.com/xeipuuv/gojsonschema"
)

// Catalog maps service types to their configuration. Loaded once at startup;
// never mutated by the workflow.
type Catalog struct {
	services map[string]models.ServiceConfig
}

// LoadCatalog reads the service catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read service catalog %s: %w", path, err)
	}

	var raw struct {
		Services []models.ServiceConfig `mapstructure:"services"`
	}
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal service catalog: %w", err)
	}

	if len(raw.Services) == 0 {
		return nil, fmt.Errorf("service catalog %s contains no services", path)
	}

	services := make(map[string]models.ServiceConfig, len(raw.Services))
	for _, svc := range raw.Services {
		if svc.Type == "" {
			return nil, fmt.Errorf("service catalog entry missing type")
		}
		if svc.DefaultPriority == "" {
			svc.DefaultPriority = models.PriorityNormal
		}
		if svc.ProcessingDays <= 0 {
			svc.ProcessingDays = 7
		}
		services[svc.Type] = svc
	}

	return &Catalog{services: services}, nil
}

// NewCatalog builds a catalog from explicit entries, used by tests.
func NewCatalog(entries ...models.ServiceConfig) *Catalog {
	services := make(map[string]models.ServiceConfig, len(entries))
	for _, svc := range entries {
		services[svc.Type] = svc
	}
	return &Catalog{services: services}
}

// Lookup returns the configuration for a service type.
func (c *Catalog) Lookup(serviceType string) (models.ServiceConfig, bool) {
	svc, ok := c.services[serviceType]
	return svc, ok
}

// Types returns the known service types.
func (c *Catalog) Types() []string {
	out := make([]string, 0, len(c.services))
	for t := range c.services {
		out = append(out, t)
	}
	return out
}

// ValidateForm checks submitted form data against the service's JSON schema.
// A service without a schema accepts any payload; the workflow treats the form
// as an opaque blob either way.
func (c *Catalog) ValidateForm(serviceType string, formData map[string]interface{}) error {
	svc, ok := c.services[serviceType]
	if !ok {
		return fmt.Errorf("unknown service type: %s", serviceType)
	}
	if len(svc.FormSchema) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(svc.FormSchema),
		gojsonschema.NewGoLoader(formData),
	)
	if err != nil {
		return fmt.Errorf("validate form data: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("form data invalid: %s", strings.Join(msgs, "; "))
	}
	return nil
}
