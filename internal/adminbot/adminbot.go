// Package adminbot interprets the commands the clinic operator sends from
// their own phone.
package adminbot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/wolfman30/clinic-booking-agent/internal/appointments"
	"github.com/wolfman30/clinic-booking-agent/internal/catalog"
	"github.com/wolfman30/clinic-booking-agent/internal/conversation"
	"github.com/wolfman30/clinic-booking-agent/internal/messaging"
	"github.com/wolfman30/clinic-booking-agent/internal/patients"
	"github.com/wolfman30/clinic-booking-agent/internal/support"
	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

const (
	searchLimit     = 5
	escalationLimit = 20
)

// Appointments is the read side of the appointment store the bot needs.
type Appointments interface {
	ListBetween(ctx context.Context, from, to time.Time) ([]appointments.Appointment, error)
	Stats(ctx context.Context, from, to time.Time) (appointments.Stats, error)
}

type Patients interface {
	Get(ctx context.Context, id uuid.UUID) (*patients.Patient, error)
	FindByTaxID(ctx context.Context, taxID string) (*patients.Patient, error)
	Search(ctx context.Context, query string, limit int) ([]patients.Patient, error)
}

type Escalations interface {
	ListPending(ctx context.Context, limit int) ([]support.Escalation, error)
	ResumeConversation(ctx context.Context, conversationID uuid.UUID) (int64, error)
}

type Conversations interface {
	Get(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error)
	EscalatedByAddress(ctx context.Context, address string) (*conversation.Conversation, error)
}

// Bot answers operator commands with plain text.
type Bot struct {
	appts         Appointments
	catalog       catalog.Repository
	patients      Patients
	escalations   Escalations
	conversations Conversations
	loc           *time.Location
	now           func() time.Time
	logger        *logging.Logger
}

type Option func(*Bot)

func WithClock(now func() time.Time) Option {
	return func(b *Bot) {
		if now != nil {
			b.now = now
		}
	}
}

func New(appts Appointments, cat catalog.Repository, pats Patients, esc Escalations, convs Conversations, loc *time.Location, logger *logging.Logger, opts ...Option) *Bot {
	switch {
	case appts == nil:
		panic("adminbot: appointments cannot be nil")
	case cat == nil:
		panic("adminbot: catalog cannot be nil")
	case pats == nil:
		panic("adminbot: patients cannot be nil")
	case esc == nil:
		panic("adminbot: escalations cannot be nil")
	case convs == nil:
		panic("adminbot: conversations cannot be nil")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	b := &Bot{
		appts:         appts,
		catalog:       cat,
		patients:      pats,
		escalations:   esc,
		conversations: convs,
		loc:           loc,
		now:           time.Now,
		logger:        logger.Component("adminbot"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handle runs one command. It always returns something to send back.
func (b *Bot) Handle(ctx context.Context, text string) string {
	cmd, arg := parse(text)
	b.logger.Info("operator command", "command", cmd)

	var (
		reply string
		err   error
	)
	switch cmd {
	case "ajuda", "help", "menu", "?", "oi", "ola":
		reply = helpText
	case "hoje", "today":
		reply, err = b.day(ctx, 0)
	case "amanha", "tomorrow":
		reply, err = b.day(ctx, 1)
	case "semana", "week", "proximos":
		reply, err = b.week(ctx)
	case "escalacoes", "escalations", "pendentes":
		reply, err = b.pendingEscalations(ctx)
	case "stats", "resumo", "estatisticas":
		reply, err = b.stats(ctx)
	case "paciente", "patient":
		reply, err = b.searchPatient(ctx, arg)
	case "retomar", "resume":
		reply, err = b.resume(ctx, arg)
	default:
		reply = "Comando não reconhecido.\n\nEnvie *ajuda* para ver os comandos disponíveis."
	}
	if err != nil {
		b.logger.Error("operator command failed", "command", cmd, "error", err)
		return "Não foi possível executar o comando agora. Tente novamente em instantes."
	}
	return reply
}

const helpText = `*Comandos do painel*

*Agenda*
• hoje: agendamentos de hoje
• amanha: agendamentos de amanhã
• semana: próximos 7 dias

*Atendimento*
• escalacoes: conversas aguardando atendente
• retomar [telefone]: devolve a conversa ao assistente

*Consulta*
• stats: resumo do dia e do mês
• paciente [nome, telefone ou CPF]: busca paciente`

// parse folds case and accents of the command word. The argument keeps its
// original spelling.
func parse(text string) (string, string) {
	text = strings.TrimSpace(text)
	cmd, arg, _ := strings.Cut(text, " ")
	return fold(cmd), strings.TrimSpace(arg)
}

func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

func (b *Bot) today() time.Time {
	n := b.now().In(b.loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, b.loc)
}

func (b *Bot) day(ctx context.Context, offset int) (string, error) {
	start := b.today().AddDate(0, 0, offset)
	list, err := b.appts.ListBetween(ctx, start, start.AddDate(0, 0, 1))
	if err != nil {
		return "", err
	}
	label := "Hoje"
	if offset == 1 {
		label = "Amanhã"
	}
	title := fmt.Sprintf("*%s (%s)*", label, start.Format("02/01"))
	if len(list) == 0 {
		return title + "\n\nNenhum agendamento encontrado.", nil
	}
	lines := []string{title, ""}
	for i, a := range list {
		d := b.describe(ctx, a)
		lines = append(lines, fmt.Sprintf("%d. %s - %s\n   %s | %s", i+1, a.StartTime.In(b.loc).Format("15:04"), d.patient, d.provider, d.procedure))
	}
	return strings.Join(lines, "\n"), nil
}

func (b *Bot) week(ctx context.Context) (string, error) {
	now := b.now()
	list, err := b.appts.ListBetween(ctx, now, b.today().AddDate(0, 0, 8))
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "*Próximos 7 dias*\n\nNenhum agendamento encontrado.", nil
	}
	lines := []string{fmt.Sprintf("*Próximos 7 dias: %d agendamento(s)*", len(list))}
	lastDay := ""
	n := 0
	for _, a := range list {
		start := a.StartTime.In(b.loc)
		day := fmt.Sprintf("%s (%s)", start.Format("02/01"), weekdayAbbrev[start.Weekday()])
		if day != lastDay {
			lines = append(lines, "", "*"+day+"*")
			lastDay = day
			n = 0
		}
		n++
		d := b.describe(ctx, a)
		lines = append(lines, fmt.Sprintf("%d. %s - %s | %s", n, start.Format("15:04"), d.patient, d.procedure))
	}
	return strings.Join(lines, "\n"), nil
}

var weekdayAbbrev = [...]string{"dom", "seg", "ter", "qua", "qui", "sex", "sáb"}

type description struct {
	patient, provider, procedure string
}

// describe resolves display names. Lookup failures fall back to placeholders
// so one broken row does not hide the agenda.
func (b *Bot) describe(ctx context.Context, a appointments.Appointment) description {
	d := description{patient: "(paciente?)", provider: "(profissional?)", procedure: "(procedimento?)"}
	if p, err := b.patients.Get(ctx, a.PatientID); err == nil {
		d.patient = p.DisplayName()
	}
	if p, err := b.catalog.GetProvider(ctx, a.ProviderID); err == nil {
		d.provider = p.Name
	}
	if p, err := b.catalog.GetProcedure(ctx, a.ProcedureID); err == nil {
		d.procedure = p.Name
	}
	return d
}

func (b *Bot) pendingEscalations(ctx context.Context) (string, error) {
	list, err := b.escalations.ListPending(ctx, escalationLimit)
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "*Escalações*\n\nNenhuma escalação pendente.", nil
	}
	lines := []string{fmt.Sprintf("*Escalações pendentes (%d)*", len(list)), ""}
	for i, e := range list {
		name, address := "(sem nome)", "?"
		if conv, err := b.conversations.Get(ctx, e.ConversationID); err == nil {
			address = conv.Address
			if p, err := b.patients.Get(ctx, conv.PatientID); err == nil && p.NameOrEmpty() != "" {
				name = p.NameOrEmpty()
			}
		}
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, name), "   Tel: "+address)
		if reason := e.ReasonOrEmpty(); reason != "" {
			lines = append(lines, "   Motivo: "+reason)
		}
		lines = append(lines, "   Em: "+e.CreatedAt.In(b.loc).Format("02/01 15:04"))
	}
	lines = append(lines, "", "Envie *retomar [telefone]* para devolver a conversa ao assistente.")
	return strings.Join(lines, "\n"), nil
}

func (b *Bot) stats(ctx context.Context) (string, error) {
	today := b.today()
	day, err := b.appts.Stats(ctx, today, today.AddDate(0, 0, 1))
	if err != nil {
		return "", err
	}
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, b.loc)
	month, err := b.appts.Stats(ctx, monthStart, monthStart.AddDate(0, 1, 0))
	if err != nil {
		return "", err
	}
	pending, err := b.escalations.ListPending(ctx, 0)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{
		fmt.Sprintf("*Resumo de %s*", today.Format("02/01/2006")),
		"",
		fmt.Sprintf("*Hoje:* %d consulta(s)", day.Total()),
		fmt.Sprintf("   Agendadas: %d", day.Scheduled),
		fmt.Sprintf("   Concluídas: %d", day.Completed),
		fmt.Sprintf("   Canceladas: %d", day.Cancelled),
		"",
		fmt.Sprintf("*Este mês:* %d consulta(s)", month.Scheduled+month.Completed),
		fmt.Sprintf("*Escalações pendentes:* %d", len(pending)),
	}, "\n"), nil
}

func (b *Bot) searchPatient(ctx context.Context, query string) (string, error) {
	if query == "" {
		return "Informe o nome, telefone ou CPF.\nEx: paciente Maria", nil
	}
	var found []patients.Patient
	if taxID := patients.NormalizeTaxID(query); patients.ValidTaxID(taxID) {
		p, err := b.patients.FindByTaxID(ctx, taxID)
		switch {
		case err == nil:
			found = append(found, *p)
		case !errors.Is(err, patients.ErrNotFound):
			return "", err
		}
	}
	if len(found) == 0 {
		q := query
		if !strings.ContainsFunc(query, unicode.IsLetter) {
			q = messaging.Digits(query)
		}
		list, err := b.patients.Search(ctx, q, searchLimit)
		if err != nil {
			return "", err
		}
		found = list
	}
	if len(found) == 0 {
		return fmt.Sprintf("Nenhum paciente encontrado para \"%s\".", query), nil
	}
	lines := []string{fmt.Sprintf("*Resultado para \"%s\"*", query), ""}
	for i, p := range found {
		name := p.NameOrEmpty()
		if name == "" {
			name = "(sem nome)"
		}
		lines = append(lines, fmt.Sprintf("%d. *%s*", i+1, name), "   Tel: "+p.Address)
		if tax := p.TaxIDOrEmpty(); tax != "" {
			lines = append(lines, "   CPF: "+patients.FormatTaxID(tax))
		}
	}
	return strings.Join(lines, "\n"), nil
}

func (b *Bot) resume(ctx context.Context, arg string) (string, error) {
	address := messaging.Digits(arg)
	if address == "" {
		return "Informe o telefone do paciente.\nEx: retomar 5511999990000", nil
	}
	conv, err := b.conversations.EscalatedByAddress(ctx, address)
	if errors.Is(err, conversation.ErrNotFound) {
		return fmt.Sprintf("Nenhuma conversa escalada para %s.", address), nil
	}
	if err != nil {
		return "", err
	}
	resolved, err := b.escalations.ResumeConversation(ctx, conv.ID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Conversa com %s devolvida ao assistente. %d escalação(ões) encerrada(s).", address, resolved), nil
}
