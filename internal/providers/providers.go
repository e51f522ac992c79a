package providers

import "strings"

// Microsoft 365 indicators used by the posture checks. MX targets are compared in FQDN form.
const (
	CloudMXSuffix   = "mail.protection.outlook.com."
	CloudSPFInclude = "include:spf.protection.outlook.com"
	DMARCVersionTag = "v=DMARC1"
	DMARCPrefix     = "_dmarc."
)

const (
	LoginBaseURL         = "https://login.microsoftonline.com"
	AutodiscoverURL      = "https://autodiscover-s.outlook.com/autodiscover/autodiscover.svc"
	ResolverListURL      = "https://raw.githubusercontent.com/wavvs/validns/main/data/resolvers-actions.txt"
	ResolverListFile     = "resolvers-actions.txt"
	FederationSOAPAction = `"http://schemas.microsoft.com/exchange/2010/Autodiscover/Autodiscover/GetFederationInformation"`
	AutodiscoverAgent    = "AutodiscoverClient"
)

// ProbeUser is the local part of the synthetic address used for realm and credential-type lookups.
const ProbeUser = "zz"

func ProbeAddress(domain string) string {
	return ProbeUser + "@" + domain
}

type NamespaceType string

const (
	NamespaceManaged   NamespaceType = "managed"
	NamespaceFederated NamespaceType = "federated"
	NamespaceUnknown   NamespaceType = "unknown"
)

var namespaceTypes = map[string]NamespaceType{
	"managed":   NamespaceManaged,
	"federated": NamespaceFederated,
	"unknown":   NamespaceUnknown,
}

// ClassifyNamespace maps a realm NameSpaceType to the lower-cased vocabulary.
// Values outside the known set pass through lower-cased.
func ClassifyNamespace(raw string) NamespaceType {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if ns, ok := namespaceTypes[lower]; ok {
		return ns
	}
	return NamespaceType(lower)
}

func IsCloudMX(target string) bool {
	t := strings.ToLower(target)
	if !strings.HasSuffix(t, ".") {
		t += "."
	}
	return strings.HasSuffix(t, CloudMXSuffix)
}

func IsCloudSPF(txt string) bool {
	return strings.Contains(txt, CloudSPFInclude)
}

func IsDMARC(txt string) bool {
	return strings.Contains(txt, DMARCVersionTag)
}
