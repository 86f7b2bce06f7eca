package bootstrap

import (
	"testing"

	"go.uber.org/fx"
)

func TestModules_GraphIsComplete(t *testing.T) {
	if err := fx.ValidateApp(Modules()); err != nil {
		t.Fatalf("dependency graph invalid: %v", err)
	}
}
