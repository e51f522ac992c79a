package identity

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wavvs/aadrecon/internal/providers"
	"github.com/wavvs/aadrecon/internal/telemetry"
)

const federationRequestTemplate = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:exm="http://schemas.microsoft.com/exchange/services/2006/messages" xmlns:ext="http://schemas.microsoft.com/exchange/services/2006/types" xmlns:a="http://www.w3.org/2005/08/addressing" xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:xsd="http://www.w3.org/2001/XMLSchema">
	<soap:Header>
		<a:Action soap:mustUnderstand="1">http://schemas.microsoft.com/exchange/2010/Autodiscover/Autodiscover/GetFederationInformation</a:Action>
		<a:To soap:mustUnderstand="1">%s</a:To>
		<a:ReplyTo>
			<a:Address>http://www.w3.org/2005/08/addressing/anonymous</a:Address>
		</a:ReplyTo>
	</soap:Header>
	<soap:Body>
		<GetFederationInformationRequestMessage xmlns="http://schemas.microsoft.com/exchange/2010/Autodiscover">
			<Request>
				<Domain>%s</Domain>
			</Request>
		</GetFederationInformationRequestMessage>
	</soap:Body>
</soap:Envelope>
`

type federationEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Message struct {
			Response struct {
				ErrorCode    string `xml:"ErrorCode"`
				ErrorMessage string `xml:"ErrorMessage"`
				Domains      *struct {
					Domain []string `xml:"Domain"`
				} `xml:"Domains"`
			} `xml:"Response"`
		} `xml:"GetFederationInformationResponseMessage"`
	} `xml:"Body"`
}

func federationRequest(endpoint, domain string) ([]byte, error) {
	var esc bytes.Buffer
	if err := xml.EscapeText(&esc, []byte(domain)); err != nil {
		return nil, err
	}
	var to bytes.Buffer
	if err := xml.EscapeText(&to, []byte(endpoint)); err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf(federationRequestTemplate, to.String(), esc.String())), nil
}

// EnumerateTenantDomains returns every domain registered to the tenant owning domain, as
// reported by the autodiscover federation-information operation. The returned slice is
// never nil on success.
func (c *Client) EnumerateTenantDomains(ctx context.Context, domain string) (domains []string, err error) {
	defer c.observe(telemetry.LookupFederation, time.Now(), &err)

	payload, err := federationRequest(c.autodiscoverURL, domain)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.autodiscoverURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", providers.FederationSOAPAction)
	req.Header.Set("User-Agent", providers.AutodiscoverAgent)

	resp, err := c.federation.Do(req)
	if err != nil {
		return nil, fmt.Errorf("federation information request: %w", err)
	}
	body, err := readBody(c.federation, resp)
	if err != nil {
		return nil, fmt.Errorf("reading federation information response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newHTTPError(resp.StatusCode, body)
	}

	var env federationEnvelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decoding federation information response: %w", err)
	}
	r := env.Body.Message.Response
	if r.ErrorCode != "" && r.ErrorCode != "NoError" {
		return nil, fmt.Errorf("%s: %s", r.ErrorCode, r.ErrorMessage)
	}
	if r.Domains == nil {
		return nil, errors.New("federation information response has no domain list")
	}

	domains = make([]string, 0, len(r.Domains.Domain))
	for _, d := range r.Domains.Domain {
		if d = strings.TrimSpace(d); d != "" {
			domains = append(domains, d)
		}
	}
	return domains, nil
}
