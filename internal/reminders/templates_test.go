package reminders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLongDate(t *testing.T) {
	loc, _ := time.LoadLocation("America/Sao_Paulo")
	assert.Equal(t, "segunda-feira, 2 de março às 14:00", LongDate(time.Date(2026, 3, 2, 14, 0, 0, 0, loc)))
}

func TestTemplatesOmitMissingClinicDetails(t *testing.T) {
	d := Details{Provider: "Dra. Ana", Procedure: "Limpeza", Start: time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)}
	clinic := Clinic{Name: "Clínica Sorriso"}

	text := Reminder24hText(d, clinic, time.UTC)
	assert.Contains(t, text, "Lembrete de consulta, você!")
	assert.NotContains(t, text, "ligue")
	assert.Contains(t, text, "terça-feira, 3 de março às 12:00")

	text = Reminder2hText(d, clinic, time.UTC)
	assert.Contains(t, text, "Hoje às *12:00*")
	assert.NotContains(t, text, "📍")

	d.PatientName = "João Pedro"
	assert.Contains(t, SurveyText(d, clinic), "Olá, João!")
	assert.Contains(t, SurveyText(d, clinic), "_Clínica Sorriso_")
}
