package features

import (
	"github.com/wso2/identity-apps-sub079/internal/domain"
	"github.com/wso2/identity-apps-sub079/internal/filter"
	"github.com/wso2/identity-apps-sub079/internal/listctl"
)

var certificateSchema = filter.NewSchema("alias",
	filter.Field[domain.Certificate]{Name: "alias", Value: func(c domain.Certificate) string { return c.Alias }},
	filter.Field[domain.Certificate]{Name: "subject", Value: func(c domain.Certificate) string { return c.SubjectDN }},
	filter.Field[domain.Certificate]{Name: "issuer", Value: func(c domain.Certificate) string { return c.IssuerDN }},
	filter.Field[domain.Certificate]{Name: "validTill", Value: func(c domain.Certificate) string { return c.ValidTill }},
)

// certificates lists keystore certificates. Deleting one requires typing
// its alias.
func (r *Registry) certificates() Feature {
	const name = "certificates"
	d := defaults{path: "api/server/v1/keystores/certs", deletePolicy: listctl.Reload}
	ep := endpointFor[domain.Certificate](r, name, d)
	f := describe(name, "Certificates", "alias", certificateSchema)
	f.ConfirmDelete = true
	f.table = tableFor[domain.Certificate](r, name, d, ep, certificateSchema, func(c domain.Certificate) string { return c.Alias }, listMessages("certificate"))
	f.fetch = fetchFor[domain.Certificate](ep)
	return f
}
