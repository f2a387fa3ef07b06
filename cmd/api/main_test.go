package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	appconfig "github.com/AyushPatel04/dental-chatbot/internal/config"
	"github.com/AyushPatel04/dental-chatbot/pkg/logging"
)

func TestNewRegistryExposesRuntimeMetrics(t *testing.T) {
	reg := newRegistry()

	rr := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Fatalf("expected go collector metrics to be exported")
	}
}

func TestLoadAWSSkippedWhenUnused(t *testing.T) {
	cfg := &appconfig.Config{AppointmentStore: "memory", UploadBackend: "disk"}
	awsCfg, err := loadAWS(context.Background(), cfg, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if awsCfg != nil {
		t.Fatalf("expected no AWS config when nothing needs it")
	}
}

func TestLoadAWSWithStaticCredentials(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg := &appconfig.Config{
		AppointmentStore:    "dynamo",
		AWSRegion:           "us-east-1",
		AWSAccessKeyID:      "test",
		AWSSecretAccessKey:  "test",
		AWSEndpointOverride: "http://localhost:4566",
	}
	awsCfg, err := loadAWS(context.Background(), cfg, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if awsCfg == nil || awsCfg.Region != "us-east-1" {
		t.Fatalf("expected AWS config for us-east-1, got %+v", awsCfg)
	}
}

func TestNewServerUsesPort(t *testing.T) {
	srv := newServer(&appconfig.Config{Port: "5050"}, http.NotFoundHandler())
	if srv.Addr != ":5050" {
		t.Fatalf("expected :5050, got %s", srv.Addr)
	}
	if srv.WriteTimeout != 0 {
		t.Fatalf("expected no write timeout for websocket connections")
	}
}
