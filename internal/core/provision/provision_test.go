package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/micromatch/internal/core/model"
)

var cycleDate = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

type fixedStarters struct {
	questions []string
	err       error
}

func (f fixedStarters) Generate(ctx context.Context, topic string, count int) ([]string, error) {
	return f.questions, f.err
}

func newTestProvisioner(tr *MockTransport, reg *MockRegistry, gen fixedStarters, opts Options) *Provisioner {
	p := NewProvisioner(tr, reg, gen, opts)
	p.now = func() time.Time { return cycleDate }
	p.suffix = func() string { return "zz99" }
	return p
}

func pair(topic string, members ...string) model.Unit {
	return model.Unit{Topic: topic, Kind: model.KindPair, Members: members, Index: 1, Total: 1}
}

func group(topic string, members ...string) model.Unit {
	return model.Unit{Topic: topic, Kind: model.KindGroup, Members: members, Index: 1, Total: 1}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "micromatch-rock-roll-duo-20261016", Sanitize("Micromatch-Rock & Roll--duo-20261016"))
	assert.Equal(t, "hello-world", Sanitize("  --Hello__World--  "))
	assert.Equal(t, strings.Repeat("a", 80), Sanitize(strings.Repeat("a", 100)))
	assert.Equal(t, "caf", Sanitize("Café"))
}

func TestRoomName(t *testing.T) {
	assert.Equal(t, "micromatch-chess-duo-20261016", RoomName("chess", model.KindPair, cycleDate, 1, 1))
	assert.Equal(t, "micromatch-board-games-grp-20261016", RoomName("board games", model.KindGroup, cycleDate, 1, 1))
	assert.Equal(t, "micromatch-board-games-grp-20261016-2", RoomName("board games", model.KindGroup, cycleDate, 2, 3))
}

func TestWithSuffix(t *testing.T) {
	name := WithSuffix(strings.Repeat("b", 90), "ab12")
	assert.Len(t, name, 80)
	assert.True(t, strings.HasSuffix(name, "-ab12"))

	assert.Equal(t, "micromatch-chess-duo-20261016-zz99", WithSuffix("micromatch-chess-duo-20261016", "zz99"))
}

func TestRandomSuffix(t *testing.T) {
	for i := 0; i < 50; i++ {
		s := randomSuffix()
		assert.Len(t, s, 4)
		assert.Equal(t, s, Sanitize(s))
	}
}

func TestProvision_Success(t *testing.T) {
	tr := NewMockTransport()
	reg := NewMockRegistry()
	p := newTestProvisioner(tr, reg, fixedStarters{questions: []string{"Q1", "Q2"}}, Options{StartersCount: 3})

	unit, err := p.Provision(context.Background(), pair("chess", "U1", "U2"))
	require.NoError(t, err)

	assert.Equal(t, "C001", unit.RoomID)
	assert.Equal(t, []string{"U1", "U2"}, unit.Members)
	assert.Equal(t, []string{"micromatch-chess-duo-20261016"}, tr.CreatedNames())
	assert.Equal(t, []string{"U1", "U2"}, tr.Invites["C001"])

	require.Contains(t, reg.Rooms, "C001")
	assert.Equal(t, "chess", reg.Rooms["C001"].Topic)
	assert.Equal(t, model.KindPair, reg.Rooms["C001"].Kind)
	assert.Equal(t, []string{"U1", "U2"}, reg.Participants["C001"])

	require.Len(t, tr.Posts["C001"], 1)
	post := tr.Posts["C001"][0]
	assert.Contains(t, post, "You both share an interest in *chess*")
	assert.Contains(t, post, "• Q1")
	assert.Contains(t, post, "• Q2")
	assert.Contains(t, post, "archived next Monday")
}

func TestProvision_GroupWelcomeUsesFallbackStarter(t *testing.T) {
	tr := NewMockTransport()
	p := newTestProvisioner(tr, NewMockRegistry(), fixedStarters{err: errors.New("llm down")}, Options{StartersCount: 3})

	unit, err := p.Provision(context.Background(), group("go", "U1", "U2", "U3"))
	require.NoError(t, err)

	post := tr.Posts[unit.RoomID][0]
	assert.Contains(t, post, "You are all interested in chatting about *go*")
	assert.Contains(t, post, "What's something new you learned about go recently?")
	assert.NotContains(t, post, "ice breakers")
}

func TestProvision_NameTakenRetriesOnce(t *testing.T) {
	tr := NewMockTransport()
	tr.TakenNames["micromatch-chess-duo-20261016"] = true
	p := newTestProvisioner(tr, NewMockRegistry(), fixedStarters{}, Options{})

	unit, err := p.Provision(context.Background(), pair("chess", "U1", "U2"))
	require.NoError(t, err)
	assert.NotEmpty(t, unit.RoomID)
	assert.Equal(t, []string{"micromatch-chess-duo-20261016-zz99"}, tr.CreatedNames())
}

func TestProvision_NameTakenTwiceFails(t *testing.T) {
	tr := NewMockTransport()
	tr.TakenNames["micromatch-chess-duo-20261016"] = true
	tr.TakenNames["micromatch-chess-duo-20261016-zz99"] = true
	reg := NewMockRegistry()
	p := newTestProvisioner(tr, reg, fixedStarters{}, Options{})

	_, err := p.Provision(context.Background(), pair("chess", "U1", "U2"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNameTaken)

	var ue *UnitError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, StageCreate, ue.Stage)
	assert.Empty(t, reg.Rooms)
}

func TestProvision_AlreadyMemberIsSuccess(t *testing.T) {
	tr := NewMockTransport()
	tr.InviteErrs["U2"] = fmt.Errorf("invite: %w", ErrAlreadyMember)
	p := newTestProvisioner(tr, NewMockRegistry(), fixedStarters{}, Options{})

	unit, err := p.Provision(context.Background(), pair("chess", "U1", "U2"))
	require.NoError(t, err)
	assert.Equal(t, []string{"U1", "U2"}, unit.Members)
}

func TestProvision_FailedInviteDropsMember(t *testing.T) {
	tr := NewMockTransport()
	tr.InviteErrs["U3"] = errors.New("user_not_found")
	reg := NewMockRegistry()
	p := newTestProvisioner(tr, reg, fixedStarters{}, Options{})

	unit, err := p.Provision(context.Background(), group("go", "U1", "U2", "U3"))
	require.NoError(t, err)
	assert.Equal(t, []string{"U1", "U2"}, unit.Members)
	assert.Equal(t, []string{"U1", "U2"}, reg.Participants[unit.RoomID])
}

func TestProvision_TooFewInvitedFailsButRecordsRoom(t *testing.T) {
	tr := NewMockTransport()
	tr.InviteErrs["U2"] = errors.New("user_not_found")
	reg := NewMockRegistry()
	p := newTestProvisioner(tr, reg, fixedStarters{}, Options{})

	unit, err := p.Provision(context.Background(), pair("chess", "U1", "U2"))
	require.Error(t, err)

	var ue *UnitError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, StageInvite, ue.Stage)
	assert.Equal(t, []string{"U1"}, unit.Members)

	assert.Contains(t, reg.Rooms, unit.RoomID)
	assert.Empty(t, reg.Participants[unit.RoomID])
	assert.Empty(t, tr.Posts[unit.RoomID])
}

func TestProvision_PostAndStoreFailuresKeepUnit(t *testing.T) {
	tr := NewMockTransport()
	tr.PostErr = errors.New("channel_not_found")
	reg := NewMockRegistry()
	reg.Err = errors.New("disk full")
	p := newTestProvisioner(tr, reg, fixedStarters{}, Options{})

	unit, err := p.Provision(context.Background(), pair("chess", "U1", "U2"))
	require.NoError(t, err)
	assert.NotEmpty(t, unit.RoomID)
}

func TestProvisionAll_IsolatesFailures(t *testing.T) {
	tr := NewMockTransport()
	tr.TakenNames["micromatch-broken-duo-20261016"] = true
	tr.TakenNames["micromatch-broken-duo-20261016-zz99"] = true
	p := newTestProvisioner(tr, NewMockRegistry(), fixedStarters{}, Options{Workers: 2})

	units := []model.Unit{
		pair("chess", "U1", "U2"),
		pair("broken", "U3", "U4"),
		group("go", "U5", "U6", "U7"),
	}
	report := p.ProvisionAll(context.Background(), units)

	require.Len(t, report.Created, 2)
	assert.Equal(t, "chess", report.Created[0].Topic)
	assert.Equal(t, "go", report.Created[1].Topic)

	require.Len(t, report.Failed, 1)
	assert.Equal(t, "broken", report.Failed[0].Unit.Topic)
	assert.Equal(t, StageCreate, report.Failed[0].Stage)
	assert.Empty(t, report.Abandoned)
}

func TestProvisionAll_CancelledContextAbandonsUnits(t *testing.T) {
	tr := NewMockTransport()
	p := newTestProvisioner(tr, NewMockRegistry(), fixedStarters{}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	units := []model.Unit{pair("chess", "U1", "U2"), group("go", "U3", "U4")}
	report := p.ProvisionAll(ctx, units)

	assert.Empty(t, report.Created)
	assert.Empty(t, report.Failed)
	assert.Len(t, report.Abandoned, 2)
	assert.Empty(t, tr.CreatedNames())
}

func TestProvisionAll_CallTimeout(t *testing.T) {
	tr := NewMockTransport()
	tr.Block = true
	p := newTestProvisioner(tr, NewMockRegistry(), fixedStarters{}, Options{CallTimeout: 20 * time.Millisecond})

	report := p.ProvisionAll(context.Background(), []model.Unit{pair("chess", "U1", "U2")})

	require.Len(t, report.Failed, 1)
	assert.Equal(t, StageCreate, report.Failed[0].Stage)
	assert.Contains(t, report.Failed[0].Error, context.DeadlineExceeded.Error())
}
