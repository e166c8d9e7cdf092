package runner

import (
	"context"
	"fmt"
)

// Mock is a deterministic CommandRunner for tests, in the same spirit
// as internal/providers/mock.Provider: a stand-in for the real external
// collaborator that never shells out.
type Mock struct {
	Paths   map[string]string
	FailOn  map[string]bool // path -> force execution failure
	Outputs map[string]string
}

// NewMock returns a Mock with factotum resolving to "factotum-bin".
func NewMock() *Mock {
	return &Mock{
		Paths:   map[string]string{"factotum": "factotum-bin"},
		FailOn:  map[string]bool{},
		Outputs: map[string]string{},
	}
}

func (m *Mock) Resolve(name string) (string, error) {
	path, ok := m.Paths[name]
	if !ok {
		return "", fmt.Errorf("no command registered for '%s'", name)
	}
	return path, nil
}

func (m *Mock) Execute(_ context.Context, path string, args []string) (string, error) {
	if m.FailOn[path] {
		return "", fmt.Errorf("mock execution failure for '%s'", path)
	}
	if out, ok := m.Outputs[path]; ok {
		return out, nil
	}
	return fmt.Sprintf("ran %s %v", path, args), nil
}
