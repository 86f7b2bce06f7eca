package docs

import (
	"encoding/json"
	"testing"

	"github.com/swaggo/swag"
	"gopkg.in/yaml.v3"
)

func TestSwaggerDoc_ListsRESTRoutes(t *testing.T) {
	raw, err := swag.ReadDoc(SwaggerInfo.InstanceName())
	if err != nil {
		t.Fatalf("read doc: %v", err)
	}

	var doc struct {
		Info  map[string]any            `json:"info"`
		Paths map[string]map[string]any `json:"paths"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("doc is not valid JSON: %v", err)
	}
	if doc.Info["title"] != "Voice STT API" {
		t.Errorf("unexpected title %v", doc.Info["title"])
	}

	for _, path := range []string{
		"/health",
		"/health/ready",
		"/health/sessions",
		"/v1/sessions",
		"/v1/sessions/{id}",
		"/v1/sessions/{id}/transcripts",
		"/v1/stats",
	} {
		if _, ok := doc.Paths[path]["get"]; !ok {
			t.Errorf("missing GET %s", path)
		}
	}
}

func TestAsyncAPISpec_DescribesStream(t *testing.T) {
	var spec struct {
		Channels map[string]any `yaml:"channels"`
	}
	if err := yaml.Unmarshal(AsyncAPISpec, &spec); err != nil {
		t.Fatalf("invalid yaml: %v", err)
	}
	if _, ok := spec.Channels["/ws/stt"]; !ok {
		t.Error("missing /ws/stt channel")
	}
}
