package adminbot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking-agent/internal/appointments"
	"github.com/wolfman30/clinic-booking-agent/internal/catalog"
	"github.com/wolfman30/clinic-booking-agent/internal/conversation"
	"github.com/wolfman30/clinic-booking-agent/internal/patients"
	"github.com/wolfman30/clinic-booking-agent/internal/support"
	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

const mariaAddress = "5511999990000"

type fixture struct {
	bot      *Bot
	appts    *appointments.InMemoryRepository
	convs    *conversation.MemoryStore
	esc      *support.EscalationService
	maria    *patients.Patient
	provider catalog.Provider
	cleaning catalog.Procedure
	loc      *time.Location
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	ctx := context.Background()

	f := &fixture{
		appts: appointments.NewInMemoryRepository(),
		convs: conversation.NewMemoryStore(),
		loc:   loc,
		now:   time.Date(2026, 3, 2, 10, 0, 0, 0, loc),
	}
	cat := catalog.NewInMemoryRepository()
	f.cleaning = cat.PutProcedure(catalog.Procedure{Name: "Limpeza", DurationMinutes: 30, Active: true})
	f.provider = cat.PutProvider(catalog.Provider{Name: "Dra. Ana", Active: true, Procedures: []catalog.Procedure{f.cleaning}})

	pats := patients.NewInMemoryRepository()
	name, tax := "Maria Souza", "52998224725"
	f.maria = &patients.Patient{Address: mariaAddress, Name: &name, TaxID: &tax}
	require.NoError(t, pats.Create(ctx, f.maria))

	f.esc = support.NewEscalationService(support.NewMemoryStore(), f.convs, nil, logging.New("error"))
	f.bot = New(f.appts, cat, pats, f.esc, f.convs, loc, logging.New("error"), WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) book(t *testing.T, start time.Time, status appointments.Status) {
	t.Helper()
	require.NoError(t, f.appts.Create(context.Background(), &appointments.Appointment{
		PatientID:   f.maria.ID,
		ProviderID:  f.provider.ID,
		ProcedureID: f.cleaning.ID,
		StartTime:   start,
		EndTime:     start.Add(30 * time.Minute),
		Status:      status,
	}))
}

func TestHelpAndUnknown(t *testing.T) {
	f := newFixture(t)
	assert.Contains(t, f.bot.Handle(context.Background(), "Ajuda"), "*Comandos do painel*")
	assert.Contains(t, f.bot.Handle(context.Background(), "help"), "retomar [telefone]")
	assert.Contains(t, f.bot.Handle(context.Background(), "xyz"), "Comando não reconhecido")
}

func TestTodayListsNonCancelledInOrder(t *testing.T) {
	f := newFixture(t)
	f.book(t, time.Date(2026, 3, 2, 14, 0, 0, 0, f.loc), appointments.StatusScheduled)
	f.book(t, time.Date(2026, 3, 2, 8, 0, 0, 0, f.loc), appointments.StatusCompleted)
	f.book(t, time.Date(2026, 3, 2, 16, 0, 0, 0, f.loc), appointments.StatusCancelled)

	out := f.bot.Handle(context.Background(), "hoje")
	assert.Contains(t, out, "*Hoje (02/03)*")
	assert.Contains(t, out, "1. 08:00 - Maria Souza\n   Dra. Ana | Limpeza")
	assert.Contains(t, out, "2. 14:00 - Maria Souza")
	assert.NotContains(t, out, "16:00")
}

func TestTomorrowIsAccentInsensitive(t *testing.T) {
	f := newFixture(t)
	out := f.bot.Handle(context.Background(), "  AMANHÃ ")
	assert.Equal(t, "*Amanhã (03/03)*\n\nNenhum agendamento encontrado.", out)

	f.book(t, time.Date(2026, 3, 3, 9, 0, 0, 0, f.loc), appointments.StatusScheduled)
	assert.Contains(t, f.bot.Handle(context.Background(), "tomorrow"), "1. 09:00 - Maria Souza")
}

func TestWeekGroupsByDay(t *testing.T) {
	f := newFixture(t)
	f.book(t, time.Date(2026, 3, 2, 8, 0, 0, 0, f.loc), appointments.StatusCompleted)
	f.book(t, time.Date(2026, 3, 2, 14, 0, 0, 0, f.loc), appointments.StatusScheduled)
	f.book(t, time.Date(2026, 3, 4, 9, 30, 0, 0, f.loc), appointments.StatusScheduled)

	out := f.bot.Handle(context.Background(), "semana")
	assert.Contains(t, out, "*Próximos 7 dias: 2 agendamento(s)*")
	assert.Contains(t, out, "*02/03 (seg)*\n1. 14:00 - Maria Souza | Limpeza")
	assert.Contains(t, out, "*04/03 (qua)*\n1. 09:30 - Maria Souza | Limpeza")
	assert.NotContains(t, out, "08:00")
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	f.book(t, time.Date(2026, 3, 2, 8, 0, 0, 0, f.loc), appointments.StatusCompleted)
	f.book(t, time.Date(2026, 3, 2, 14, 0, 0, 0, f.loc), appointments.StatusScheduled)
	f.book(t, time.Date(2026, 3, 2, 16, 0, 0, 0, f.loc), appointments.StatusCancelled)
	f.book(t, time.Date(2026, 3, 20, 9, 0, 0, 0, f.loc), appointments.StatusScheduled)

	out := f.bot.Handle(context.Background(), "estatísticas")
	assert.Contains(t, out, "*Resumo de 02/03/2026*")
	assert.Contains(t, out, "*Hoje:* 3 consulta(s)")
	assert.Contains(t, out, "   Canceladas: 1")
	assert.Contains(t, out, "*Este mês:* 3 consulta(s)")
	assert.Contains(t, out, "*Escalações pendentes:* 0")
}

func TestPatientSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out := f.bot.Handle(ctx, "paciente maria")
	assert.Contains(t, out, "1. *Maria Souza*")
	assert.Contains(t, out, "CPF: 529.982.247-25")

	out = f.bot.Handle(ctx, "Paciente 529.982.247-25")
	assert.Contains(t, out, "Tel: "+mariaAddress)

	out = f.bot.Handle(ctx, "paciente (11) 99999")
	assert.Contains(t, out, "Maria Souza")

	assert.Contains(t, f.bot.Handle(ctx, "paciente"), "Informe o nome")
	assert.Contains(t, f.bot.Handle(ctx, "paciente Joana"), "Nenhum paciente encontrado")
}

func TestEscalationsAndResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv := &conversation.Conversation{PatientID: f.maria.ID, Address: mariaAddress}
	require.NoError(t, f.convs.Create(ctx, conv))
	_, err := f.esc.CreateEscalation(ctx, support.EscalationRequest{ConversationID: conv.ID, Reason: "quer falar com a dentista"})
	require.NoError(t, err)

	out := f.bot.Handle(ctx, "escalações")
	assert.Contains(t, out, "*Escalações pendentes (1)*")
	assert.Contains(t, out, "1. Maria Souza\n   Tel: "+mariaAddress)
	assert.Contains(t, out, "Motivo: quer falar com a dentista")

	out = f.bot.Handle(ctx, "retomar +55 11 99999-0000")
	assert.Equal(t, "Conversa com 5511999990000 devolvida ao assistente. 1 escalação(ões) encerrada(s).", out)

	got, err := f.convs.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusActive, got.Status)
	assert.Contains(t, f.bot.Handle(ctx, "escalacoes"), "Nenhuma escalação pendente")
	assert.Contains(t, f.bot.Handle(ctx, "resume 5511999990000"), "Nenhuma conversa escalada")
	assert.Contains(t, f.bot.Handle(ctx, "resume"), "Informe o telefone")
}

type failingAppointments struct{}

func (failingAppointments) ListBetween(context.Context, time.Time, time.Time) ([]appointments.Appointment, error) {
	return nil, errors.New("db down")
}

func (failingAppointments) Stats(context.Context, time.Time, time.Time) (appointments.Stats, error) {
	return appointments.Stats{}, errors.New("db down")
}

func TestStoreFailureGivesGenericReply(t *testing.T) {
	f := newFixture(t)
	bot := New(failingAppointments{}, catalog.NewInMemoryRepository(), patients.NewInMemoryRepository(), f.esc, f.convs, f.loc, logging.New("error"))
	assert.Contains(t, bot.Handle(context.Background(), "hoje"), "Não foi possível executar o comando")
}

func TestFold(t *testing.T) {
	assert.Equal(t, "escalacoes", fold(" Escalações "))
	assert.Equal(t, "amanha", fold("AMANHÃ"))
}
