package transcoder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idlookup/internal/identifier"
	"idlookup/internal/lookup"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

const fullPayload = `<?xml version="1.0" encoding="UTF-8"?>
<root>
  <nombres>JUAN CARLOS</nombres>
  <apellido1>PEREZ</apellido1>
  <apellido2>GOMEZ</apellido2>
  <fecha_nac>1985-04-12</fecha_nac>
  <lugar_nac>SANTO DOMINGO</lugar_nac>
  <sexo>M</sexo>
  <est_civil>S</est_civil>
  <mun_ced>001</mun_ced>
  <seq_ced>2345678</seq_ced>
  <ver_ced>2</ver_ced>
  <cod_nacion>1</cod_nacion>
  <desc_nacionalidad>DOMINICANA</desc_nacionalidad>
  <fecha_expiracion>2030-04-12</fecha_expiracion>
  <categoria>1</categoria>
  <desc_categoria>CIUDADANO</desc_categoria>
  <estatus>ACTIVO</estatus>
  <fotourl>https://registry.example/photo/00123456782</fotourl>
  <unknown_field>ignored</unknown_field>
</root>`

func TestTranscode(t *testing.T) {
	id := identifier.MustDecompose("00123456782")
	tc := New(WithClock(func() time.Time { return fixedNow }))

	t.Run("full document", func(t *testing.T) {
		res := tc.Transcode([]byte(fullPayload), id)

		require.True(t, res.Success)
		assert.Equal(t, lookup.MessageSuccess, res.Message)
		assert.Equal(t, "JUAN CARLOS", *res.GivenNames)
		assert.Equal(t, "PEREZ", *res.FirstSurname)
		assert.Equal(t, "GOMEZ", *res.SecondSurname)
		assert.Equal(t, "JUAN CARLOS PEREZ GOMEZ", *res.FullName)
		assert.Equal(t, "DOMINICANA", *res.Nationality)
		assert.Equal(t, "ACTIVO", *res.RegistryStatus)
		assert.Equal(t, fixedNow, res.QueriedAt)
		assert.Equal(t, "001-2345678-2", res.ValidationInfo.Formatted)
		assert.False(t, res.IsFallback())
	})

	t.Run("explicit full name wins over synthesized", func(t *testing.T) {
		body := `<root><nombres>ANA</nombres><apellido1>DIAZ</apellido1><nombre_completo>ANA MARIA DIAZ</nombre_completo></root>`
		res := tc.Transcode([]byte(body), id)
		require.True(t, res.Success)
		assert.Equal(t, "ANA MARIA DIAZ", *res.FullName)
	})

	t.Run("blank fields become absent", func(t *testing.T) {
		body := `<root><nombres>ANA</nombres><apellido1>DIAZ</apellido1><apellido2>   </apellido2><fotourl></fotourl></root>`
		res := tc.Transcode([]byte(body), id)
		require.True(t, res.Success)
		assert.Nil(t, res.SecondSurname)
		assert.Nil(t, res.PhotoURL)
		assert.Equal(t, "ANA DIAZ", *res.FullName)
	})

	t.Run("missing surname is not found", func(t *testing.T) {
		res := tc.Transcode([]byte(`<root><nombres>ANA</nombres></root>`), id)
		assert.False(t, res.Success)
		assert.Equal(t, lookup.MessageNotFound, res.Message)
		assert.False(t, res.IsFallback())
	})

	t.Run("malformed XML is a deterministic empty result", func(t *testing.T) {
		first := tc.Transcode([]byte(`<root><nombres>ANA`), id)
		second := tc.Transcode([]byte(`<root><nombres>ANA`), id)
		assert.Equal(t, first, second)
		assert.Equal(t, tc.Empty(id), first)
		assert.True(t, first.ValidationInfo.FormatValid)
	})

	t.Run("wrong root element is empty", func(t *testing.T) {
		res := tc.Transcode([]byte(`<html><body>maintenance</body></html>`), id)
		assert.False(t, res.Success)
	})

	t.Run("empty body is empty", func(t *testing.T) {
		assert.Equal(t, tc.Empty(id), tc.Transcode([]byte("  \n"), id))
	})
}
