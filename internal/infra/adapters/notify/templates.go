package notify

import (
	"html/template"
	"time"

	"membership-payments/internal/domain/ports/adapter"
)

type emailTemplate struct {
	subject string
	body    *template.Template
}

var funcs = template.FuncMap{
	"date": func(t time.Time) string { return t.UTC().Format("02 Jan 2006") },
}

func mustBody(name, src string) *template.Template {
	return template.Must(template.New(name).Funcs(funcs).Option("missingkey=zero").Parse(src))
}

const layoutOpen = `<html><body><p>Dear {{if .Name}}{{.Name}}{{else}}member{{end}},</p>`
const layoutClose = `<p>Thank you,<br>The Membership Office</p></body></html>`

var emailTemplates = map[string]emailTemplate{
	adapter.TemplateMembershipActivated: {
		subject: "Your membership is active",
		body: mustBody(adapter.TemplateMembershipActivated, layoutOpen+`
<p>Your {{.MembershipType}} membership is now active.</p>
{{if .Lifetime}}<p>This is a lifetime membership.</p>{{else}}<p>It is valid until {{date .ExpiresAt}}.</p>{{end}}
{{if .Amount}}<p>Amount paid: {{.Amount}} (reference {{.TransactionID}}).</p>{{end}}
{{if .Benefits}}<ul>{{range .Benefits}}<li>{{.}}</li>{{end}}</ul>{{end}}`+layoutClose),
	},
	adapter.TemplateMembershipRenewed: {
		subject: "Your membership has been renewed",
		body: mustBody(adapter.TemplateMembershipRenewed, layoutOpen+`
<p>Your {{.MembershipType}} membership has been renewed and is now valid until {{date .ExpiresAt}}.</p>
<p>Amount charged: {{.Amount}} (reference {{.TransactionID}}).</p>`+layoutClose),
	},
	adapter.TemplateRefundInitiated: {
		subject: "Your refund is on its way",
		body: mustBody(adapter.TemplateRefundInitiated, layoutOpen+`
<p>We have issued a refund of {{.Amount}} for transaction {{.TransactionID}}.</p>
<p>Refund status: {{.RefundStatus}}. Your associated membership has been cancelled.</p>`+layoutClose),
	},
	adapter.TemplateMembershipExpiring: {
		subject: "Your membership expires soon",
		body: mustBody(adapter.TemplateMembershipExpiring, layoutOpen+`
<p>Your {{.MembershipType}} membership expires on {{date .ExpiresAt}} ({{.DaysRemaining}} days from now).</p>
{{if .AutoRenew}}<p>Auto-renewal is on; we will charge your saved payment method before then.</p>{{else}}<p>Renew now to keep your benefits.</p>{{end}}`+layoutClose),
	},
	adapter.TemplateMembershipExpired: {
		subject: "Your membership has expired",
		body: mustBody(adapter.TemplateMembershipExpired, layoutOpen+`
<p>Your {{.MembershipType}} membership expired on {{date .ExpiresAt}}. You can purchase a new membership at any time.</p>`+layoutClose),
	},
	adapter.TemplatePaymentFailed: {
		subject: "Your payment did not go through",
		body: mustBody(adapter.TemplatePaymentFailed, layoutOpen+`
<p>Your payment of {{.Amount}} (reference {{.TransactionID}}) failed{{if .Reason}}: {{.Reason}}{{end}}.</p>
<p>Please try again with a different payment method.</p>`+layoutClose),
	},
	adapter.TemplateMembershipSuspended: {
		subject: "Your membership is suspended",
		body: mustBody(adapter.TemplateMembershipSuspended, layoutOpen+`
<p>Your membership has been suspended{{if .Reason}} ({{.Reason}}){{end}}. Our team will contact you shortly.</p>`+layoutClose),
	},
}
