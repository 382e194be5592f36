package reminders

import (
	"fmt"
	"strings"
	"time"
)

// Clinic is the identity printed at the bottom of every reminder.
type Clinic struct {
	Name    string
	Phone   string
	Address string
}

// Details describes the appointment a reminder is about.
type Details struct {
	PatientName string
	Provider    string
	Procedure   string
	Start       time.Time
}

var (
	weekdays = [...]string{"domingo", "segunda-feira", "terça-feira", "quarta-feira", "quinta-feira", "sexta-feira", "sábado"}
	months   = [...]string{"janeiro", "fevereiro", "março", "abril", "maio", "junho", "julho", "agosto", "setembro", "outubro", "novembro", "dezembro"}
)

// LongDate renders "segunda-feira, 2 de março às 14:00".
func LongDate(t time.Time) string {
	return fmt.Sprintf("%s, %d de %s às %s", weekdays[t.Weekday()], t.Day(), months[t.Month()-1], t.Format("15:04"))
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "você"
	}
	return fields[0]
}

func Reminder24hText(d Details, clinic Clinic, loc *time.Location) string {
	lines := []string{
		fmt.Sprintf("⏰ *Lembrete de consulta, %s!*", firstName(d.PatientName)),
		"",
		"Sua consulta é *amanhã*. Não esqueça 😊",
		"",
		fmt.Sprintf("📋 *%s*", d.Procedure),
		"👩‍⚕️ " + d.Provider,
		"📅 " + LongDate(d.Start.In(loc)),
		"",
		"Precisa cancelar ou reagendar? É só me chamar por aqui!",
	}
	if clinic.Phone != "" {
		lines = append(lines, fmt.Sprintf("📞 Se preferir, ligue: *%s*", clinic.Phone))
	}
	return strings.Join(append(lines, "", "_"+clinic.Name+"_"), "\n")
}

func Reminder2hText(d Details, clinic Clinic, loc *time.Location) string {
	lines := []string{
		fmt.Sprintf("🕐 *Sua consulta é daqui a 2 horas, %s!*", firstName(d.PatientName)),
		"",
		fmt.Sprintf("📋 %s com %s", d.Procedure, d.Provider),
		fmt.Sprintf("🕐 Hoje às *%s*", d.Start.In(loc).Format("15:04")),
	}
	if clinic.Address != "" {
		lines = append(lines, "", "📍 "+clinic.Address)
	}
	lines = append(lines, "", "Chegue com 10 minutos de antecedência. Até já!", "", "_"+clinic.Name+"_")
	return strings.Join(lines, "\n")
}

func SurveyText(d Details, clinic Clinic) string {
	return strings.Join([]string{
		fmt.Sprintf("💙 *Olá, %s! Tudo bem?*", firstName(d.PatientName)),
		"",
		fmt.Sprintf("Esperamos que sua consulta com %s tenha sido ótima.", d.Provider),
		"",
		"⭐ De 1 a 5, como você avalia nosso atendimento?",
		"_(1 = ruim, 5 = excelente)_",
		"",
		"Se quiser, deixe também um comentário. Sua opinião nos ajuda a melhorar. 🙏",
		"",
		"_" + clinic.Name + "_",
	}, "\n")
}
