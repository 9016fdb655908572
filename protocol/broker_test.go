package protocol

import (
	"testing"

	"github.com/hashicorp/serf/serf"
)

func TestBrokerFromSerfTags(t *testing.T) {
	m := serf.Member{Tags: map[string]string{
		"role":               "broker",
		"ID":                 "3",
		"rack":               "us-east-1c",
		"control_addr":       "host3:9092",
		"listener_PLAINTEXT": "host3:9092",
		"listener_INTERNAL":  "host3.internal:9093",
	}}
	b, err := brokerFromSerfTags(m)
	if err != nil {
		t.Fatalf("brokerFromSerfTags: %v", err)
	}
	if b.NodeID != 3 || b.Rack != "us-east-1c" {
		t.Fatalf("broker = %+v", b)
	}
	if len(b.Endpoints) != 2 {
		t.Fatalf("endpoints = %+v, want the two listener tags", b.Endpoints)
	}
	if ep := b.Endpoints["PLAINTEXT"]; ep.Host != "host3" || ep.Port != 9092 {
		t.Fatalf("PLAINTEXT endpoint = %+v", ep)
	}
	if ep := b.Endpoints["INTERNAL"]; ep.Host != "host3.internal" || ep.Port != 9093 {
		t.Fatalf("INTERNAL endpoint = %+v", ep)
	}
}

func TestBrokerFromSerfTagsRejectsBadID(t *testing.T) {
	if _, err := brokerFromSerfTags(serf.Member{Tags: map[string]string{"ID": "not-a-number"}}); err == nil {
		t.Fatal("expected an error for a non-numeric ID tag")
	}
	if _, err := brokerFromSerfTags(serf.Member{Tags: map[string]string{"ID": "1", "listener_X": "no-port"}}); err == nil {
		t.Fatal("expected an error for a malformed listener tag")
	}
}
