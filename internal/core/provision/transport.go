package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/agenthands/micromatch/internal/core/model"
)

var (
	// ErrNameTaken is returned by CreateRoom when the room name already exists.
	ErrNameTaken = errors.New("room name taken")
	// ErrAlreadyMember is returned by InviteMembers when the invitee is
	// already in the room. Provisioning treats it as success.
	ErrAlreadyMember = errors.New("already a member")
)

// Transport is the messaging system rooms are created in.
type Transport interface {
	CreateRoom(ctx context.Context, name string, private bool) (string, error)
	InviteMembers(ctx context.Context, roomID string, participantIDs []string) error
	PostMessage(ctx context.Context, roomID, text string) error
}

// RoomRegistry persists rooms and their membership for the archival pass.
type RoomRegistry interface {
	UpsertRoom(ctx context.Context, room model.Room) error
	AddRoomParticipants(ctx context.Context, roomID string, participantIDs []string) error
}

// Stages a unit can fail in.
const (
	StageCreate = "create"
	StageInvite = "invite"
)

// UnitError reports which provisioning stage failed for a unit.
type UnitError struct {
	Stage string
	Err   error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("provision %s: %v", e.Stage, e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }
