package main

import (
	"testing"

	"github.com/CefBoud/monmeta/types"
)

func TestSplitHostPort(t *testing.T) {
	host, port, err := splitHostPort("broker1:9092")
	if err != nil || host != "broker1" || port != 9092 {
		t.Fatalf("splitHostPort = %q %d %v", host, port, err)
	}
	if _, _, err := splitHostPort("no-port"); err == nil {
		t.Fatal("expected an error for an address without a port")
	}
	if _, _, err := splitHostPort("broker1:nan"); err == nil {
		t.Fatal("expected an error for a non-numeric port")
	}
}

func TestParseListeners(t *testing.T) {
	endpoints, err := parseListeners([]string{
		"PLAINTEXT://broker1:9092",
		"INTERNAL://broker1.internal:9093",
	})
	if err != nil {
		t.Fatalf("parseListeners: %v", err)
	}
	if len(endpoints) != 2 {
		t.Fatalf("endpoints = %v", endpoints)
	}
	if ep := endpoints["PLAINTEXT"]; ep != (types.Endpoint{Host: "broker1", Port: 9092}) {
		t.Fatalf("PLAINTEXT = %+v", ep)
	}
	if ep := endpoints["INTERNAL"]; ep != (types.Endpoint{Host: "broker1.internal", Port: 9093}) {
		t.Fatalf("INTERNAL = %+v", ep)
	}
	if _, err := parseListeners([]string{"bad-flag"}); err == nil {
		t.Fatal("expected an error for a listener without a scheme separator")
	}
}
