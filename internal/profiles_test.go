package internal

import (
	"errors"
	"reflect"
	"testing"
)

func names(specs []*ServiceSpec) []string {
	out := make([]string, 0, len(specs))
	for _, s := range specs {
		out = append(out, s.Name)
	}
	return out
}

func TestSelect(t *testing.T) {
	d, err := LoadDescriptor("testdata/compose.yml")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		profiles []string
		targets  []string
		want     []string
	}{
		{"default", nil, nil, []string{"kafka", "redis", "zookeeper"}},
		{"profile enables service", []string{"ui"}, nil, []string{"kafka", "kafka-ui", "redis", "zookeeper"}},
		{"unknown profile", []string{"debug"}, nil, []string{"kafka", "redis", "zookeeper"}},
		{"target pulls in dependencies", nil, []string{"kafka"}, []string{"kafka", "zookeeper"}},
		{"target without dependencies", nil, []string{"redis"}, []string{"redis"}},
		{"target outside selected profiles", nil, []string{"kafka-ui"}, []string{"kafka", "kafka-ui", "zookeeper"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Select(d, tt.profiles, tt.targets)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(names(got), tt.want) {
				t.Fatalf("selected %v, want %v", names(got), tt.want)
			}
		})
	}
}

func TestSelectUnknownTarget(t *testing.T) {
	d, err := LoadDescriptor("testdata/compose.yml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Select(d, nil, []string{"postgres"}); err == nil {
		t.Fatal("expected an error for an undeclared service")
	}
}

func TestSelectDependencyOnDisabledProfile(t *testing.T) {
	d, err := ParseDescriptor([]byte(`
services:
  api:
    image: example/api
    depends_on: [db]
  db:
    image: postgres:16
    profiles: [storage]
`))
	if err != nil {
		t.Fatal(err)
	}

	_, err = Select(d, nil, nil)
	if !errors.Is(err, ErrInvalidDescriptor) {
		t.Fatalf("expected ErrInvalidDescriptor, got %v", err)
	}

	got, err := Select(d, []string{"storage"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"api", "db"}; !reflect.DeepEqual(names(got), want) {
		t.Fatalf("selected %v, want %v", names(got), want)
	}
}
