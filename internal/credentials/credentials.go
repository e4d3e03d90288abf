package credentials

import (
	"fmt"

	"github.com/trackbeam/trackbeam-backend/pkg/enums"
)

// GA4Credentials authenticate against the GA4 Measurement Protocol.
type GA4Credentials struct {
	MeasurementID string `json:"measurement_id"`
	APISecret     string `json:"api_secret"`
}

func (c GA4Credentials) validate() error {
	if c.MeasurementID == "" || c.APISecret == "" {
		return fmt.Errorf("ga4 credentials incomplete")
	}
	return nil
}

// MetaCredentials authenticate against the Meta Conversions API.
type MetaCredentials struct {
	PixelID       string `json:"pixel_id"`
	AccessToken   string `json:"access_token"`
	TestEventCode string `json:"test_event_code,omitempty"`
}

func (c MetaCredentials) validate() error {
	if c.PixelID == "" || c.AccessToken == "" {
		return fmt.Errorf("meta credentials incomplete")
	}
	return nil
}

// TikTokCredentials authenticate against the TikTok Events API.
type TikTokCredentials struct {
	PixelCode   string `json:"pixel_code"`
	AccessToken string `json:"access_token"`
}

func (c TikTokCredentials) validate() error {
	if c.PixelCode == "" || c.AccessToken == "" {
		return fmt.Errorf("tiktok credentials incomplete")
	}
	return nil
}

// Credentials is the tagged union handed to an adapter at send time. Exactly
// one of the platform fields is set, matching Destination. Adapters resolve
// the variant once at their boundary; nothing downstream inspects it ad hoc.
type Credentials struct {
	Destination enums.Destination

	GA4    *GA4Credentials
	Meta   *MetaCredentials
	TikTok *TikTokCredentials
}

// Validate checks that the variant matching the destination is present and
// complete.
func (c Credentials) Validate() error {
	switch c.Destination {
	case enums.DestinationGA4:
		if c.GA4 == nil {
			return fmt.Errorf("missing ga4 credentials")
		}
		return c.GA4.validate()
	case enums.DestinationMeta:
		if c.Meta == nil {
			return fmt.Errorf("missing meta credentials")
		}
		return c.Meta.validate()
	case enums.DestinationTikTok:
		if c.TikTok == nil {
			return fmt.Errorf("missing tiktok credentials")
		}
		return c.TikTok.validate()
	}
	return fmt.Errorf("unknown destination %q", c.Destination)
}
