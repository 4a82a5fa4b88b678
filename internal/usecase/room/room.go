package usecase_room

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/irfanalimd/watchqueue/internal/model"
	"github.com/irfanalimd/watchqueue/pkg/apperr"
)

// Join codes skip characters that read ambiguously (O/0, I/1).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	codeLength  = 6
	codeRetries = 10
)

type RoomUpdate struct {
	Name     *string
	Settings *model.RoomSettings
}

//go:generate mockery --name=RoomRepository --output=./mocks --filename=room_repository.go
type RoomRepository interface {
	// Insert returns apperr.Conflict when the unique code or name
	// index rejects the document; the message names the culprit.
	Insert(ctx context.Context, room model.Room) (model.Room, error)
	Find(ctx context.Context, roomID string) (*model.Room, error)
	FindByCode(ctx context.Context, code string) (*model.Room, error)
	FindByName(ctx context.Context, name string) (*model.Room, error)
	Update(ctx context.Context, roomID string, update RoomUpdate) (*model.Room, error)
	Delete(ctx context.Context, roomID string) (bool, error)
	ListByMember(ctx context.Context, userID string) ([]model.Room, error)

	PushMember(ctx context.Context, roomID string, member model.Member) (*model.Room, error)
	SetMember(ctx context.Context, roomID string, member model.Member) (*model.Room, error)
	PullMember(ctx context.Context, roomID, userID string) (*model.Room, error)
	AddAdmin(ctx context.Context, roomID, userID string) (*model.Room, error)
}

// Cleaner removes the room's dependent collections after the room
// document itself is gone. The cascade is not transactional; a crash
// mid-cleanup leaves orphaned rows, which is acceptable garbage.
type Cleaner interface {
	DeleteRoomData(ctx context.Context, roomID string) error
}

type Usecase struct {
	rooms   RoomRepository
	cleaner Cleaner
}

func New(rooms RoomRepository, cleaner Cleaner) *Usecase {
	return &Usecase{
		rooms:   rooms,
		cleaner: cleaner,
	}
}

type CreateParams struct {
	Name     string
	Members  []model.Member
	Settings *model.RoomSettings
}

func (u *Usecase) Create(ctx context.Context, params CreateParams) (model.Room, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return model.Room{}, apperr.InvalidArgument("room name is required")
	}

	existing, err := u.rooms.FindByName(ctx, name)
	if err != nil {
		return model.Room{}, err
	}
	if existing != nil {
		return model.Room{}, apperr.Conflict("room name already exists, choose another name")
	}

	members := make([]model.Member, 0, len(params.Members))
	seen := make(map[string]struct{}, len(params.Members))
	for _, m := range params.Members {
		m.Region = model.NormalizeRegion(m.Region)
		normalized := model.NormalizeName(m.Name)
		if _, taken := seen[normalized]; taken {
			return model.Room{}, apperr.Conflict("user already exists, choose another name")
		}
		seen[normalized] = struct{}{}
		members = append(members, m)
	}

	settings := model.DefaultRoomSettings()
	if params.Settings != nil {
		settings = *params.Settings
	}
	if err := validateSettings(settings); err != nil {
		return model.Room{}, err
	}

	admins := []string{}
	if len(members) > 0 {
		admins = []string{members[0].UserID}
	}

	// Codes can collide; retry with a fresh one while the unique index
	// keeps rejecting.
	for retries := codeRetries; retries > 0; retries-- {
		room, err := u.rooms.Insert(ctx, model.Room{
			Name:      name,
			Code:      generateCode(codeLength),
			Members:   members,
			Admins:    admins,
			Settings:  settings,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			if apperr.IsCode(err, apperr.CodeConflict) {
				continue
			}
			return model.Room{}, err
		}
		return room, nil
	}
	return model.Room{}, apperr.Unavailable("failed to generate a unique room code")
}

func (u *Usecase) Get(ctx context.Context, roomID string) (model.Room, error) {
	room, err := u.rooms.Find(ctx, roomID)
	if err != nil {
		return model.Room{}, err
	}
	if room == nil {
		return model.Room{}, apperr.NotFound("room not found")
	}
	return *room, nil
}

func (u *Usecase) ByCode(ctx context.Context, code string) (model.Room, error) {
	room, err := u.rooms.FindByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return model.Room{}, err
	}
	if room == nil {
		return model.Room{}, apperr.NotFound("room not found")
	}
	return *room, nil
}

func (u *Usecase) Update(ctx context.Context, roomID string, update RoomUpdate) (model.Room, error) {
	if update.Settings != nil {
		if err := validateSettings(*update.Settings); err != nil {
			return model.Room{}, err
		}
	}
	if update.Name == nil && update.Settings == nil {
		return u.Get(ctx, roomID)
	}

	room, err := u.rooms.Update(ctx, roomID, update)
	if err != nil {
		return model.Room{}, err
	}
	if room == nil {
		return model.Room{}, apperr.NotFound("room not found")
	}
	return *room, nil
}

func (u *Usecase) ListForMember(ctx context.Context, userID string) ([]model.Room, error) {
	return u.rooms.ListByMember(ctx, userID)
}

// Delete cascades: the room goes first so it cannot be found
// mid-cleanup, then items, history and votes.
func (u *Usecase) Delete(ctx context.Context, roomID string) error {
	deleted, err := u.rooms.Delete(ctx, roomID)
	if err != nil {
		return err
	}
	if !deleted {
		return apperr.NotFound("room not found")
	}
	return u.cleaner.DeleteRoomData(ctx, roomID)
}

// AddMember appends a member. Re-joining with the same user id is an
// idempotent no-op; a colliding display name is a conflict.
func (u *Usecase) AddMember(ctx context.Context, roomID string, member model.Member) (model.Room, error) {
	room, err := u.Get(ctx, roomID)
	if err != nil {
		return model.Room{}, err
	}

	member.Region = model.NormalizeRegion(member.Region)
	if room.Member(member.UserID) != nil {
		return room, nil
	}

	normalized := model.NormalizeName(member.Name)
	for _, m := range room.Members {
		if model.NormalizeName(m.Name) == normalized {
			return model.Room{}, apperr.Conflict("user already exists, choose another name")
		}
	}

	updated, err := u.rooms.PushMember(ctx, roomID, member)
	if err != nil {
		return model.Room{}, err
	}
	if updated == nil {
		return model.Room{}, apperr.NotFound("room not found")
	}
	return *updated, nil
}

func (u *Usecase) JoinByCode(ctx context.Context, code string, member model.Member) (model.Room, error) {
	room, err := u.ByCode(ctx, code)
	if err != nil {
		return model.Room{}, err
	}
	return u.AddMember(ctx, room.ID, member)
}

func (u *Usecase) UpdateMember(ctx context.Context, roomID string, member model.Member) (model.Room, error) {
	room, err := u.Get(ctx, roomID)
	if err != nil {
		return model.Room{}, err
	}
	if room.Member(member.UserID) == nil {
		return model.Room{}, apperr.NotFound("member not found")
	}

	member.Region = model.NormalizeRegion(member.Region)
	normalized := model.NormalizeName(member.Name)
	for _, m := range room.Members {
		if m.UserID != member.UserID && model.NormalizeName(m.Name) == normalized {
			return model.Room{}, apperr.Conflict("user already exists, choose another name")
		}
	}

	updated, err := u.rooms.SetMember(ctx, roomID, member)
	if err != nil {
		return model.Room{}, err
	}
	if updated == nil {
		return model.Room{}, apperr.NotFound("member not found")
	}
	return *updated, nil
}

func (u *Usecase) GrantAdmin(ctx context.Context, roomID, actorID, targetID string) (model.Room, error) {
	room, err := u.Get(ctx, roomID)
	if err != nil {
		return model.Room{}, err
	}
	if !room.IsAdmin(actorID) {
		return model.Room{}, apperr.PermissionDenied("only admins can grant admin rights")
	}
	if room.Member(targetID) == nil {
		return model.Room{}, apperr.NotFound("target user is not a room member")
	}

	updated, err := u.rooms.AddAdmin(ctx, roomID, targetID)
	if err != nil {
		return model.Room{}, err
	}
	if updated == nil {
		return model.Room{}, apperr.NotFound("room not found")
	}
	return *updated, nil
}

// Leave removes a member with the admin handoff rules: the sole admin
// must name a replacement before leaving. Leaving a room you are not in
// is an idempotent no-op, which keeps stale-client retries harmless.
func (u *Usecase) Leave(ctx context.Context, roomID, userID, newAdminID string) (model.Room, error) {
	room, err := u.Get(ctx, roomID)
	if err != nil {
		return model.Room{}, err
	}

	if room.Member(userID) == nil {
		return room, nil
	}

	if room.IsAdmin(userID) {
		otherAdmins := 0
		for _, id := range room.Admins {
			if id != userID && room.Member(id) != nil {
				otherAdmins++
			}
		}

		if newAdminID != "" {
			if newAdminID == userID {
				return model.Room{}, apperr.InvalidArgument("cannot transfer admin to yourself")
			}
			if room.Member(newAdminID) == nil {
				return model.Room{}, apperr.InvalidArgument("new admin must be an existing room member")
			}
			if !room.IsAdmin(newAdminID) {
				if _, err := u.rooms.AddAdmin(ctx, roomID, newAdminID); err != nil {
					return model.Room{}, err
				}
				otherAdmins++
			}
		}

		if otherAdmins == 0 {
			return model.Room{}, apperr.InvalidState("last admin cannot leave without transferring admin privileges")
		}
	}

	updated, err := u.rooms.PullMember(ctx, roomID, userID)
	if err != nil {
		return model.Room{}, err
	}
	if updated == nil {
		return model.Room{}, apperr.NotFound("room not found")
	}
	return *updated, nil
}

func (u *Usecase) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	room, err := u.rooms.Find(ctx, roomID)
	if err != nil {
		return false, err
	}
	return room != nil && room.Member(userID) != nil, nil
}

func validateSettings(s model.RoomSettings) error {
	if s.VotingDurationSeconds < 10 || s.VotingDurationSeconds > 600 {
		return apperr.InvalidArgument("voting_duration_seconds must be between 10 and 600")
	}
	if !s.SelectionMode.Valid() {
		return apperr.InvalidArgument(fmt.Sprintf("unknown selection mode %q", s.SelectionMode))
	}
	return nil
}

func generateCode(length int) string {
	var builder strings.Builder
	builder.Grow(length)

	alphabetLen := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			// crypto/rand only fails when the platform source is
			// broken; there is no useful recovery.
			panic(err)
		}
		builder.WriteByte(codeAlphabet[n.Int64()])
	}
	return builder.String()
}
