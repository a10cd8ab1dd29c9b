package pdf

import (
	"bytes"
	"context"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

const agreementBody = "This Affiliate Agreement governs your participation in the " +
	"AgnusLink referral program. By signing you agree to submit only leads " +
	"you are authorized to share, to represent the program accurately, and " +
	"to the commission schedule published on your dashboard. Commissions " +
	"accrue when a lead you submitted is qualified or sold, and referral " +
	"overrides accrue for affiliates you have referred, up to two levels."

// GenerateAgreement renders the agreement snapshot stored alongside the
// signature record when onboarding completes the signature stage.
func (p *PDFProvider) GenerateAgreement(ctx context.Context, data AgreementData) (io.Reader, error) {
	m := maroto.New(config.NewBuilder().Build())

	m.AddRow(30,
		text.NewCol(12, "Affiliate Agreement", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
		}),
	)

	m.AddRow(25,
		col.New(12).Add(
			text.New("Affiliate: "+data.AffiliateName, props.Text{Top: 0}),
			text.New("Email: "+data.Email, props.Text{Top: 5}),
			text.New("Referral code: "+data.ReferralCode, props.Text{Top: 10}),
			text.New("Date: "+data.Date, props.Text{Top: 15}),
		),
	)

	m.AddRow(80,
		text.NewCol(12, agreementBody, props.Text{Size: 10}),
	)

	m.AddRow(20,
		text.NewCol(12, "Signed electronically by "+data.AffiliateName+" on "+data.Date, props.Text{
			Size:  10,
			Style: fontstyle.Italic,
		}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}
