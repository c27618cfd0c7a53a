// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package presenter renders a location as human readable text, as JSON or through a user
// provided template.
package presenter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/mattn/go-runewidth"
	"github.com/vorlif/humanize"
	"github.com/vorlif/humanize/locale/de"
	"github.com/vorlif/spreak"
	"github.com/vorlif/spreak/localize"

	"github.com/wneessen/place/internal/i18n"
	"github.com/wneessen/place/internal/location"
)

type Format int

const (
	FormatText Format = iota
	FormatJSON
	FormatTemplate
)

// TemplateContext is the data a user template is executed with. Place is the zero value
// when the location has no placemark.
type TemplateContext struct {
	location.Location
	Place        location.Placemark
	LastObserved string
}

type Presenter struct {
	format    Format
	tpl       *template.Template
	localizer *spreak.Localizer
	humanizer *humanize.Humanizer
}

// New returns a Presenter for the given format. tplText is only parsed for FormatTemplate.
func New(format Format, tplText, lang string, loc *spreak.Localizer) (*Presenter, error) {
	collection, err := humanize.New(humanize.WithLocale(de.New()))
	if err != nil {
		return nil, fmt.Errorf("failed to create humanizer: %w", err)
	}
	p := &Presenter{
		format:    format,
		localizer: loc,
		humanizer: collection.CreateHumanizer(i18n.Tag(lang)),
	}
	if format == FormatTemplate {
		p.tpl, err = template.New("text").Funcs(p.templateFuncMap()).Parse(tplText)
		if err != nil {
			return nil, fmt.Errorf("failed to parse text template: %w", err)
		}
	}
	return p, nil
}

func (p *Presenter) BuildContext(loc *location.Location) TemplateContext {
	ctx := TemplateContext{
		Location:     *loc,
		LastObserved: p.humanizer.NaturalTime(loc.Timestamp),
	}
	if loc.Placemark != nil {
		ctx.Place = *loc.Placemark
	}
	return ctx
}

// Render writes the location to w in the format of the Presenter.
func (p *Presenter) Render(w io.Writer, loc *location.Location) error {
	if loc == nil {
		return errors.New("no location to render")
	}
	switch p.format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(loc); err != nil {
			return fmt.Errorf("failed to encode location: %w", err)
		}
		return nil
	case FormatTemplate:
		buf := strings.Builder{}
		if err := p.tpl.Execute(&buf, p.BuildContext(loc)); err != nil {
			return fmt.Errorf("failed to render template: %w", err)
		}
		buf.WriteString("\n")
		_, err := io.WriteString(w, buf.String())
		return err
	default:
		_, err := io.WriteString(w, p.text(loc))
		return err
	}
}

type line struct {
	label string
	value string
}

func (p *Presenter) text(loc *location.Location) string {
	lines := []line{
		{p.localizer.Get(labelLatitude), floatFormat(loc.Latitude, 6)},
		{p.localizer.Get(labelLongitude), floatFormat(loc.Longitude, 6)},
		{p.localizer.Get(labelAccuracy), p.meters(loc.HorizontalAccuracy)},
	}
	if loc.VerticalAccuracy >= 0 {
		lines = append(lines, line{
			p.localizer.Get(labelAltitude),
			fmt.Sprintf("%s m (± %s)", floatFormat(loc.Altitude, 1), p.meters(loc.VerticalAccuracy)),
		})
		if loc.EllipsoidalAltitude != 0 {
			lines = append(lines, line{p.localizer.Get(labelEllipsoidal), floatFormat(loc.EllipsoidalAltitude, 1) + " m"})
		}
	}
	lines = append(lines, line{p.localizer.Get(labelLastObserved), p.humanizer.NaturalTime(loc.Timestamp)})
	if loc.Source != "" {
		lines = append(lines, line{p.localizer.Get(labelSource), loc.Source})
	}
	if loc.Placemark != nil {
		lines = append(lines, p.placemarkLines(loc.Placemark)...)
	}

	width := 0
	for _, l := range lines {
		width = max(width, runewidth.StringWidth(l.label))
	}
	buf := strings.Builder{}
	for _, l := range lines {
		buf.WriteString(runewidth.FillRight(l.label+":", width+2))
		buf.WriteString(l.value)
		buf.WriteString("\n")
	}
	return buf.String()
}

func (p *Presenter) placemarkLines(pm *location.Placemark) []line {
	fields := []struct {
		label localize.MsgID
		value string
	}{
		{labelName, pm.Name},
		{labelThoroughfare, pm.Thoroughfare},
		{labelSubThorough, pm.SubThoroughfare},
		{labelPostalCode, pm.PostalCode},
		{labelLocality, pm.Locality},
		{labelSubLocality, pm.SubLocality},
		{labelSubAdminArea, pm.SubAdministrativeArea},
		{labelAdminArea, pm.AdministrativeArea},
		{labelRegion, pm.Region},
		{labelCountry, pm.Country},
		{labelCountryCode, pm.ISOCountryCode},
		{labelInlandWater, pm.InlandWater},
		{labelOcean, pm.Ocean},
		{labelAreasInterest, strings.Join(pm.AreasOfInterest, ", ")},
	}
	lines := make([]line, 0, len(fields))
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		lines = append(lines, line{p.localizer.Get(f.label), f.value})
	}
	return lines
}

func (p *Presenter) meters(val float64) string {
	if val < 0 {
		return p.localizer.Get(labelUnknown)
	}
	return floatFormat(val, 1) + " m"
}
