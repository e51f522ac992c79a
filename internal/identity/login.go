package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wavvs/aadrecon/internal/providers"
	"github.com/wavvs/aadrecon/internal/telemetry"
)

type Realm struct {
	NameSpaceType       string `json:"NameSpaceType"`
	FederationBrandName string `json:"FederationBrandName"`
	CloudInstanceName   string `json:"CloudInstanceName"`
	AuthURL             string `json:"AuthURL"`
}

// Namespace is the lower-cased NameSpaceType.
func (r *Realm) Namespace() string {
	return string(providers.ClassifyNamespace(r.NameSpaceType))
}

// STSHost returns the host of AuthURL, or "" when the realm is not federated.
func (r *Realm) STSHost() string {
	if r.AuthURL == "" {
		return ""
	}
	if u, err := url.Parse(r.AuthURL); err == nil && u.Host != "" {
		return u.Host
	}
	parts := strings.Split(r.AuthURL, "/")
	if len(parts) > 2 {
		return parts[2]
	}
	return ""
}

type Tenant struct {
	// ID is empty when the domain is not backed by any tenant.
	ID          string
	RegionScope string
}

type openIDConfig struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TenantRegionScope     string `json:"tenant_region_scope"`
	Error                 string `json:"error"`
	ErrorDescription      string `json:"error_description"`
}

type credentialType struct {
	EstsProperties struct {
		DesktopSsoEnabled *bool `json:"DesktopSsoEnabled"`
	} `json:"EstsProperties"`
}

func (c *Client) ClassifyRealm(ctx context.Context, domain string) (realm *Realm, err error) {
	defer c.observe(telemetry.LookupRealm, time.Now(), &err)

	endpoint := c.loginURL + "/GetUserRealm.srf?login=" + url.QueryEscape(providers.ProbeAddress(domain))
	resp, err := c.http.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("realm lookup: %w", err)
	}
	body, err := readBody(c.http, resp)
	if err != nil {
		return nil, fmt.Errorf("reading realm response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newHTTPError(resp.StatusCode, body)
	}

	realm = &Realm{}
	if err := json.Unmarshal(body, realm); err != nil {
		return nil, fmt.Errorf("decoding realm response: %w", err)
	}
	return realm, nil
}

// ResolveTenantID reads the tenant's OpenID discovery document. A domain unknown to the
// provider yields a Tenant with an empty ID and a nil error.
func (c *Client) ResolveTenantID(ctx context.Context, domain string) (tenant *Tenant, err error) {
	defer c.observe(telemetry.LookupTenantID, time.Now(), &err)

	endpoint := fmt.Sprintf("%s/%s/.well-known/openid-configuration", c.loginURL, url.PathEscape(domain))
	resp, err := c.http.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("tenant lookup: %w", err)
	}
	body, err := readBody(c.http, resp)
	if err != nil {
		return nil, fmt.Errorf("reading tenant response: %w", err)
	}

	var cfg openIDConfig
	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.Unmarshal(body, &cfg); err != nil {
			return nil, fmt.Errorf("decoding openid configuration: %w", err)
		}
		id, err := tenantIDFromEndpoint(cfg.AuthorizationEndpoint)
		if err != nil {
			return nil, err
		}
		return &Tenant{ID: id, RegionScope: cfg.TenantRegionScope}, nil
	case http.StatusBadRequest:
		if err := json.Unmarshal(body, &cfg); err != nil {
			return nil, newHTTPError(resp.StatusCode, body)
		}
		if cfg.Error == "invalid_tenant" {
			return &Tenant{}, nil
		}
		if cfg.ErrorDescription == "" {
			return nil, newHTTPError(resp.StatusCode, body)
		}
		return nil, errors.New(cfg.ErrorDescription)
	default:
		return nil, newHTTPError(resp.StatusCode, body)
	}
}

// tenantIDFromEndpoint takes the first path segment of the authorization endpoint
// (https://login.microsoftonline.com/<tenant>/oauth2/authorize).
func tenantIDFromEndpoint(endpoint string) (string, error) {
	parts := strings.Split(endpoint, "/")
	if len(parts) < 4 || parts[3] == "" {
		return "", fmt.Errorf("unexpected authorization_endpoint %q", endpoint)
	}
	id := parts[3]
	if u, err := uuid.Parse(id); err == nil {
		return u.String(), nil
	}
	slog.Debug("Tenant ID is not a UUID", "tenant_id", id)
	return id, nil
}

// CheckDesktopSSO reports EstsProperties.DesktopSsoEnabled, false when absent.
func (c *Client) CheckDesktopSSO(ctx context.Context, domain string) (enabled bool, err error) {
	defer c.observe(telemetry.LookupCredential, time.Now(), &err)

	payload, err := json.Marshal(map[string]string{
		"username":             providers.ProbeAddress(domain),
		"isOtherIdpSupported":  "true",
		"checkPhones":          "true",
		"isRemoteNGCSupported": "false",
		"isCookieBannerShown":  "false",
		"isFidoSupported":      "false",
		"originalRequest":      "",
		"flowToken":            "",
	})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL+"/common/GetCredentialType", bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("credential type lookup: %w", err)
	}
	body, err := readBody(c.http, resp)
	if err != nil {
		return false, fmt.Errorf("reading credential type response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, newHTTPError(resp.StatusCode, body)
	}

	var ct credentialType
	if err := json.Unmarshal(body, &ct); err != nil {
		return false, fmt.Errorf("decoding credential type response: %w", err)
	}
	if ct.EstsProperties.DesktopSsoEnabled == nil {
		return false, nil
	}
	return *ct.EstsProperties.DesktopSsoEnabled, nil
}
