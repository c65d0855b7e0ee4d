// Package transcoder converts the registry's XML payload into lookup.Result.
package transcoder

import (
	"bytes"
	"encoding/xml"
	"strings"
	"time"

	"idlookup/internal/identifier"
	"idlookup/internal/lookup"
)

// payload mirrors the registry's flat <root> document. Fields the registry
// adds later are ignored by encoding/xml.
type payload struct {
	XMLName          xml.Name `xml:"root"`
	Nombres          string   `xml:"nombres"`
	Apellido1        string   `xml:"apellido1"`
	Apellido2        string   `xml:"apellido2"`
	NombreCompleto   string   `xml:"nombre_completo"`
	FechaNac         string   `xml:"fecha_nac"`
	LugarNac         string   `xml:"lugar_nac"`
	Sexo             string   `xml:"sexo"`
	EstCivil         string   `xml:"est_civil"`
	MunCed           string   `xml:"mun_ced"`
	SeqCed           string   `xml:"seq_ced"`
	VerCed           string   `xml:"ver_ced"`
	CodNacion        string   `xml:"cod_nacion"`
	DescNacionalidad string   `xml:"desc_nacionalidad"`
	FechaExpiracion  string   `xml:"fecha_expiracion"`
	Categoria        string   `xml:"categoria"`
	DescCategoria    string   `xml:"desc_categoria"`
	Estatus          string   `xml:"estatus"`
	FotoURL          string   `xml:"fotourl"`
}

// Transcoder is stateless; the clock is injectable for tests.
type Transcoder struct {
	now func() time.Time
}

// Option configures a Transcoder.
type Option func(*Transcoder)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Transcoder) { t.now = now }
}

// New builds a Transcoder.
func New(opts ...Option) *Transcoder {
	t := &Transcoder{now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transcode decodes body into a Result. It never fails: malformed or empty
// documents produce the same deterministic not-found result as Empty.
func (t *Transcoder) Transcode(body []byte, id identifier.Identifier) *lookup.Result {
	if len(bytes.TrimSpace(body)) == 0 {
		return t.Empty(id)
	}
	var p payload
	if err := xml.Unmarshal(body, &p); err != nil {
		return t.Empty(id)
	}

	res := &lookup.Result{
		GivenNames:      present(p.Nombres),
		FirstSurname:    present(p.Apellido1),
		SecondSurname:   present(p.Apellido2),
		FullName:        present(p.NombreCompleto),
		BirthDate:       present(p.FechaNac),
		BirthPlace:      present(p.LugarNac),
		Sex:             present(p.Sexo),
		MaritalStatus:   present(p.EstCivil),
		RegionCode:      present(p.MunCed),
		SequenceNumber:  present(p.SeqCed),
		VerifierDigit:   present(p.VerCed),
		NationalityCode: present(p.CodNacion),
		Nationality:     present(p.DescNacionalidad),
		ExpiryDate:      present(p.FechaExpiracion),
		CategoryCode:    present(p.Categoria),
		Category:        present(p.DescCategoria),
		RegistryStatus:  present(p.Estatus),
		PhotoURL:        present(p.FotoURL),
		QueriedAt:       t.now(),
		ValidationInfo:  id.ValidationInfo(),
	}
	if res.FullName == nil {
		res.FullName = present(joinNonBlank(p.Nombres, p.Apellido1, p.Apellido2))
	}

	res.Success = res.GivenNames != nil && res.FirstSurname != nil
	if res.Success {
		res.Message = lookup.MessageSuccess
	} else {
		res.Message = lookup.MessageNotFound
	}
	return res
}

// Empty is the not-found result for id.
func (t *Transcoder) Empty(id identifier.Identifier) *lookup.Result {
	return &lookup.Result{
		Success:        false,
		Message:        lookup.MessageNotFound,
		QueriedAt:      t.now(),
		ValidationInfo: id.ValidationInfo(),
	}
}

func present(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func joinNonBlank(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
