// Package playbook applies negotiation playbooks to matched clauses and
// emits normalized redline change sets.
//
// A playbook maps clause types to positions: the preferred text, an optional
// fallback, and terms that are never acceptable. The engine compares each
// confident match against its position and proposes replacements, tracking
// coverage and a weighted risk score for the resulting redline.
package playbook

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Position is the negotiation stance for one clause type.
type Position struct {
	ClauseType           string   `json:"clause_type" yaml:"clause_type"`
	PreferredText        string   `json:"preferred_text" yaml:"preferred_text"`
	FallbackText         string   `json:"fallback_text,omitempty" yaml:"fallback_text,omitempty"`
	UnacceptableTerms    []string `json:"unacceptable_terms,omitempty" yaml:"unacceptable_terms,omitempty"`
	RiskWeight           float64  `json:"risk_weight" yaml:"risk_weight"`
	JurisdictionOverride string   `json:"jurisdiction_override,omitempty" yaml:"jurisdiction_override,omitempty"`
	Reasoning            string   `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
}

// Playbook is a named set of positions for one contract type.
type Playbook struct {
	ID           string              `json:"id" yaml:"id"`
	Name         string              `json:"name" yaml:"name"`
	ContractType string              `json:"contract_type" yaml:"contract_type"`
	Jurisdiction string              `json:"jurisdiction,omitempty" yaml:"jurisdiction,omitempty"`
	Positions    map[string]Position `json:"positions" yaml:"positions"`
}

// Load reads a playbook from a YAML file.
func Load(path string) (*Playbook, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read playbook: %w", err)
	}
	return Parse(raw)
}

// Parse parses an in-memory playbook document and validates it.
func Parse(raw []byte) (*Playbook, error) {
	var pb Playbook
	if err := yaml.Unmarshal(raw, &pb); err != nil {
		return nil, fmt.Errorf("parse playbook: %w", err)
	}
	if pb.ID == "" {
		return nil, fmt.Errorf("playbook: missing id")
	}
	for key, pos := range pb.Positions {
		if pos.PreferredText == "" {
			return nil, fmt.Errorf("playbook %s: position %q has no preferred text", pb.ID, key)
		}
		if pos.ClauseType == "" {
			pos.ClauseType = key
		}
		if pos.RiskWeight <= 0 {
			pos.RiskWeight = 1.0
		}
		pb.Positions[key] = pos
	}
	return &pb, nil
}

// normalizeText canonicalizes clause text for position comparison: case
// folded with whitespace runs collapsed.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
