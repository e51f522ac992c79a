// Copyright (c) 2026 wavvs
// Licensed under the MIT License. See LICENSE for terms.
package models

import (
	"encoding/json"
)

// Signal is a tri-state check outcome: true, false, or an error payload.
type Signal struct {
	Value bool
	Err   string
}

func SignalOf(v bool) Signal {
	return Signal{Value: v}
}

func SignalError(msg string) Signal {
	return Signal{Err: msg}
}

func (s Signal) IsError() bool {
	return s.Err != ""
}

func (s Signal) MarshalJSON() ([]byte, error) {
	if s.Err != "" {
		return json.Marshal(map[string]string{"error": s.Err})
	}
	return json.Marshal(s.Value)
}

func (s *Signal) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*s = Signal{Value: b}
		return nil
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	*s = Signal{Err: payload.Error}
	return nil
}

type DomainRecord struct {
	Type  string `json:"type,omitempty"`
	STS   string `json:"sts,omitempty"`
	Error string `json:"error,omitempty"`
	DNS   Signal `json:"dns"`
	MX    Signal `json:"mx"`
	SPF   Signal `json:"spf"`
	DMARC Signal `json:"dmarc"`
}

type RegistrarInfo struct {
	Domain  string `json:"domain,omitempty"`
	Name    string `json:"name,omitempty"`
	Created string `json:"created,omitempty"`
	Expires string `json:"expires,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TenantRecord is one output line. When Error is set only Domain and Error are serialized.
type TenantRecord struct {
	Domain       string                   `json:"domain"`
	TenantID     string                   `json:"tenant_id"`
	TenantRegion string                   `json:"tenant_region,omitempty"`
	DesktopSSO   bool                     `json:"desktop_sso"`
	TenantBrand  string                   `json:"tenant_brand"`
	Registrar    *RegistrarInfo           `json:"registrar,omitempty"`
	Domains      map[string]*DomainRecord `json:"domains"`
	Error        string                   `json:"-"`
}

func NewTenantRecord(domain string) *TenantRecord {
	return &TenantRecord{
		Domain:  domain,
		Domains: make(map[string]*DomainRecord),
	}
}

func TenantError(domain, msg string) *TenantRecord {
	return &TenantRecord{Domain: domain, Error: msg}
}

func (t *TenantRecord) MarshalJSON() ([]byte, error) {
	if t.Error != "" {
		return json.Marshal(struct {
			Domain string `json:"domain"`
			Error  string `json:"error"`
		}{t.Domain, t.Error})
	}
	type plain TenantRecord
	return json.Marshal((*plain)(t))
}
