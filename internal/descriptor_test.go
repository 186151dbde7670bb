package internal

import (
	"errors"
	"gopkg.in/yaml.v3"
	"reflect"
	"testing"
	"time"
)

func TestLoadDescriptor(t *testing.T) {
	d, err := LoadDescriptor("testdata/compose.yml")
	if err != nil {
		t.Fatal(err)
	}

	if want := []string{"kafka", "kafka-ui", "redis", "zookeeper"}; !reflect.DeepEqual(d.Names(), want) {
		t.Fatalf("services = %v, want %v", d.Names(), want)
	}

	zk, ok := d.Service("zookeeper")
	if !ok {
		t.Fatal("zookeeper not found")
	}
	if zk.Image != "confluentinc/cp-zookeeper:7.5.0" {
		t.Errorf("image = %q", zk.Image)
	}
	if zk.Restart != RestartAlways {
		t.Errorf("restart = %s, want always", zk.Restart)
	}
	if zk.Environment["ZOOKEEPER_CLIENT_PORT"] != "2181" {
		t.Errorf("environment = %v", zk.Environment)
	}
	if !reflect.DeepEqual(zk.Ports, []string{"2181:2181"}) {
		t.Errorf("ports = %v", zk.Ports)
	}
	wantCheck := &HealthCheck{
		Test:     []string{"bash", "-c", "echo ruok | nc localhost 2181 | grep imok"},
		Interval: 10 * time.Second,
		Timeout:  5 * time.Second,
		Retries:  5,
	}
	if !reflect.DeepEqual(zk.HealthCheck, wantCheck) {
		t.Errorf("healthcheck = %+v, want %+v", zk.HealthCheck, wantCheck)
	}

	kafka, _ := d.Service("kafka")
	if !reflect.DeepEqual(kafka.DependsOn, []string{"zookeeper"}) {
		t.Errorf("kafka depends on %v", kafka.DependsOn)
	}
	wantTest := []string{"/bin/sh", "-c", "kafka-broker-api-versions --bootstrap-server localhost:9092"}
	if !reflect.DeepEqual(kafka.HealthCheck.Test, wantTest) {
		t.Errorf("kafka test = %v, want %v", kafka.HealthCheck.Test, wantTest)
	}

	ui, _ := d.Service("kafka-ui")
	if ui.HealthCheck != nil {
		t.Errorf("kafka-ui should have no health check, got %+v", ui.HealthCheck)
	}
	if !reflect.DeepEqual(ui.Profiles, []string{"ui"}) {
		t.Errorf("kafka-ui profiles = %v", ui.Profiles)
	}
	if !reflect.DeepEqual(ui.DependsOn, []string{"zookeeper", "kafka"}) {
		t.Errorf("kafka-ui depends on %v", ui.DependsOn)
	}
}

func TestParseDescriptorAlternativeForms(t *testing.T) {
	t.Setenv("WHARF_TEST_TOKEN", "s3cr3t")

	d, err := ParseDescriptor([]byte(`
services:
  worker:
    image: example/worker
    restart: "no"
    environment:
      - MODE=batch
      - EMPTY=
      - WHARF_TEST_TOKEN
    healthcheck:
      test: pgrep worker
      interval: 2
      start_period: 1m
  cache:
    image: redis:7-alpine
    restart: on-failure
    environment:
      UNSET:
    healthcheck:
      test: ["NONE"]
  db:
    image: postgres:16
    healthcheck:
      test: ["CMD", "pg_isready"]
      retries: 0
  disabled:
    image: example/disabled
    healthcheck:
      test: ["CMD", "true"]
      disable: true
`))
	if err != nil {
		t.Fatal(err)
	}

	worker, _ := d.Service("worker")
	if worker.Restart != RestartNever {
		t.Errorf("worker restart = %s, want never", worker.Restart)
	}
	wantEnv := map[string]string{"MODE": "batch", "EMPTY": "", "WHARF_TEST_TOKEN": "s3cr3t"}
	if !reflect.DeepEqual(worker.Environment, wantEnv) {
		t.Errorf("worker environment = %v, want %v", worker.Environment, wantEnv)
	}
	if want := []string{"EMPTY=", "MODE=batch", "WHARF_TEST_TOKEN=s3cr3t"}; !reflect.DeepEqual(worker.Env(), want) {
		t.Errorf("worker env = %v, want %v", worker.Env(), want)
	}
	wantCheck := &HealthCheck{
		Test:        []string{"/bin/sh", "-c", "pgrep worker"},
		Interval:    2 * time.Second,
		Timeout:     defaultHealthTimeout,
		Retries:     defaultHealthRetries,
		StartPeriod: time.Minute,
	}
	if !reflect.DeepEqual(worker.HealthCheck, wantCheck) {
		t.Errorf("worker healthcheck = %+v, want %+v", worker.HealthCheck, wantCheck)
	}

	cache, _ := d.Service("cache")
	if cache.Restart != RestartOnFailure {
		t.Errorf("cache restart = %s, want on-failure", cache.Restart)
	}
	if v, ok := cache.Environment["UNSET"]; !ok || v != "" {
		t.Errorf("cache environment = %v", cache.Environment)
	}
	if cache.HealthCheck != nil {
		t.Errorf("NONE should disable the health check, got %+v", cache.HealthCheck)
	}

	db, _ := d.Service("db")
	if db.HealthCheck == nil || db.HealthCheck.Retries != 0 || db.HealthCheck.Interval != defaultHealthInterval {
		t.Errorf("db healthcheck = %+v", db.HealthCheck)
	}

	disabled, _ := d.Service("disabled")
	if disabled.HealthCheck != nil {
		t.Errorf("disable: true should disable the health check, got %+v", disabled.HealthCheck)
	}
}

func TestParseDescriptorInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not yaml", "services: [unterminated"},
		{"no services", "services: {}"},
		{"missing image", "services:\n  api:\n    restart: always\n"},
		{"unknown restart policy", "services:\n  api:\n    image: a\n    restart: sometimes\n"},
		{"invalid port", "services:\n  api:\n    image: a\n    ports: [\"http:80\"]\n"},
		{"unknown test form", "services:\n  api:\n    image: a\n    healthcheck:\n      test: [\"RUN\", \"true\"]\n"},
		{"empty CMD", "services:\n  api:\n    image: a\n    healthcheck:\n      test: [\"CMD\"]\n"},
		{"negative retries", "services:\n  api:\n    image: a\n    healthcheck:\n      test: [\"CMD\", \"true\"]\n      retries: -1\n"},
		{"bad duration", "services:\n  api:\n    image: a\n    healthcheck:\n      test: [\"CMD\", \"true\"]\n      interval: soon\n"},
		{"undefined dependency", "services:\n  api:\n    image: a\n    depends_on: [db]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDescriptor([]byte(tt.content))
			if !errors.Is(err, ErrInvalidDescriptor) {
				t.Fatalf("expected ErrInvalidDescriptor, got %v", err)
			}
		})
	}
}

func TestParseDescriptorKeepsCause(t *testing.T) {
	_, err := ParseDescriptor([]byte("services:\n  api:\n    image: a\n    restart: sometimes\n"))
	if !errors.Is(err, ErrInvalidDescriptor) || !errors.Is(err, ErrUnknownRestartPolicy) {
		t.Fatalf("expected ErrInvalidDescriptor wrapping ErrUnknownRestartPolicy, got %v", err)
	}

	_, err = ParseDescriptor([]byte("services:\n  api:\n    image: [a, b]\n"))
	var typeErr *yaml.TypeError
	if !errors.Is(err, ErrInvalidDescriptor) || !errors.As(err, &typeErr) {
		t.Fatalf("expected ErrInvalidDescriptor wrapping a yaml.TypeError, got %v", err)
	}
}

func TestParseDescriptorCycle(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"self reference", "services:\n  a:\n    image: a\n    depends_on: [a]\n"},
		{"mutual", "services:\n  a:\n    image: a\n    depends_on: [b]\n  b:\n    image: b\n    depends_on:\n      a:\n        condition: service_healthy\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDescriptor([]byte(tt.content))
			var cycleErr *CycleError
			if !errors.As(err, &cycleErr) {
				t.Fatalf("expected CycleError, got %v", err)
			}
		})
	}
}

func TestLoadDescriptorMissingFile(t *testing.T) {
	if _, err := LoadDescriptor("testdata/does-not-exist.yml"); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
