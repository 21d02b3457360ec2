package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/metacurb/nestjs-websocket-starter/internal/domain"
	"github.com/metacurb/nestjs-websocket-starter/internal/repository"
	"github.com/metacurb/nestjs-websocket-starter/internal/roomcode"
)

// RoomService 是房间协调状态机：创建/加入/重入/离开/踢人/转移房主/锁定/关闭。
// 进程内不持有任何状态，每个操作都从 store 重新读取，
// 正确性完全依赖 store 层的原子性（SETNX 预留、MULTI/EXEC 删除）。
// RoomService 是 Room/User 记录和成员集合的唯一写入方。
type RoomService struct {
	rooms  repository.RoomRepository
	users  repository.UserRepository
	tokens *TokenService
	codes  *roomcode.Generator

	roomTTL         time.Duration
	reserveAttempts int
}

// NewRoomService 创建 RoomService 实例。
// reserveAttempts 限制创建房间时因房间码冲突而重试的次数。
func NewRoomService(
	rooms repository.RoomRepository,
	users repository.UserRepository,
	tokens *TokenService,
	codes *roomcode.Generator,
	roomTTL time.Duration,
	reserveAttempts int,
) *RoomService {
	if rooms == nil {
		panic("RoomRepository cannot be nil for RoomService")
	}
	if users == nil {
		panic("UserRepository cannot be nil for RoomService")
	}
	if tokens == nil {
		panic("TokenService cannot be nil for RoomService")
	}
	if codes == nil {
		panic("code Generator cannot be nil for RoomService")
	}
	if roomTTL <= 0 {
		panic("roomTTL must be positive for RoomService")
	}
	if reserveAttempts <= 0 {
		reserveAttempts = 10
	}
	return &RoomService{
		rooms:           rooms,
		users:           users,
		tokens:          tokens,
		codes:           codes,
		roomTTL:         roomTTL,
		reserveAttempts: reserveAttempts,
	}
}

// Session 是 create/join/rejoin 的结果：房间快照、成员记录和会话令牌。
type Session struct {
	Room  *domain.Room
	User  *domain.User
	Token string
}

// Create 创建一个新房间，调用方成为房主。
// maxUsers <= 0 表示不限制成员数。
func (s *RoomService) Create(ctx context.Context, displayName string, maxUsers int) (*Session, error) {
	logCtx := logrus.WithField("display_name", displayName)

	// 1. 生成并原子预留一个唯一房间码。
	//    SETNX 是唯一的硬互斥点：两个并发 Create 不可能拿到同一个码。
	code, err := s.reserveCode(ctx)
	if err != nil {
		logCtx.WithError(err).Error("Failed to reserve a unique room code")
		return nil, err
	}
	logCtx = logCtx.WithField("room_code", code)

	// 2. 创建房主的存在记录。
	user := s.newUser(code, displayName)
	if err := s.users.Save(ctx, user, s.roomTTL); err != nil {
		return nil, err
	}

	// 3. 写入完整房间记录（覆盖预留时的占位值）并登记成员。
	now := time.Now().UTC()
	room := &domain.Room{
		Code:      code,
		HostID:    user.ID,
		IsLocked:  false,
		MaxUsers:  maxUsers,
		State:     domain.RoomStateCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.rooms.Save(ctx, room, s.roomTTL); err != nil {
		return nil, err
	}
	if err := s.rooms.AddMember(ctx, code, user.ID); err != nil {
		return nil, err
	}
	if err := s.rooms.RefreshTTL(ctx, code, s.roomTTL); err != nil {
		return nil, err
	}

	// 4. 签发会话令牌。
	token, err := s.tokens.Issue(code, user.ID)
	if err != nil {
		return nil, err
	}

	logCtx.WithField("host_id", user.ID).Info("Room created")
	return &Session{Room: room, User: user, Token: token}, nil
}

// Join 以新成员身份加入房间。
// 锁定/满员检查和成员写入基于同一次读取；并发竞争下的容量控制是尽力而为
// （见设计说明），这里不做补偿锁。
func (s *RoomService) Join(ctx context.Context, code, displayName string) (*Session, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_code": code, "display_name": displayName})

	// 1. 读取房间并检查可加入性。
	room, err := s.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if room.IsLocked {
		logCtx.Warn("Join rejected: room is locked")
		return nil, domain.ErrRoomLocked
	}
	if room.HasCapacityLimit() {
		count, err := s.rooms.MemberCount(ctx, room.Code)
		if err != nil {
			return nil, err
		}
		if count >= room.MaxUsers {
			logCtx.WithField("member_count", count).Warn("Join rejected: room is full")
			return nil, domain.ErrRoomFull
		}
	}

	// 2. 创建成员记录并登记到成员集合。
	user := s.newUser(room.Code, displayName)
	if err := s.users.Save(ctx, user, s.roomTTL); err != nil {
		return nil, err
	}
	if err := s.rooms.AddMember(ctx, room.Code, user.ID); err != nil {
		return nil, err
	}

	// 3. 成员变化延长房间生命周期。
	if err := s.touchRoom(ctx, room); err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(room.Code, user.ID)
	if err != nil {
		return nil, err
	}

	logCtx.WithField("user_id", user.ID).Info("User joined room")
	return &Session{Room: room, User: user, Token: token}, nil
}

// Rejoin 为一个已经是成员的身份重新签发会话令牌（例如页面刷新），
// 不创建新的存在记录，也不改动成员集合。
func (s *RoomService) Rejoin(ctx context.Context, code, userID string) (*Session, error) {
	room, err := s.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	isMember, err := s.rooms.IsMember(ctx, room.Code, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, domain.ErrUserNotFound
	}
	user, err := s.GetMember(ctx, userID)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(room.Code, userID)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"room_code": room.Code, "user_id": userID}).Info("User rejoined room")
	return &Session{Room: room, User: user, Token: token}, nil
}

// Leave 把成员移出房间并删除其存在记录。
// 房主离开时：若还有其他成员，房主身份转移给成员集合查询返回的第一个剩余成员；
// 若没有成员剩下，整个房间（记录 + 成员集合）被删除。
// 返回更新后的房间，房间被删除时返回 nil。
func (s *RoomService) Leave(ctx context.Context, code, userID string) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_code": code, "user_id": userID})

	room, err := s.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	isMember, err := s.rooms.IsMember(ctx, room.Code, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, domain.ErrUserNotFound
	}

	// 1. 成员集合与存在记录总是一起变更。
	if err := s.rooms.RemoveMember(ctx, room.Code, userID); err != nil {
		return nil, err
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return nil, err
	}

	// 2. 房主离开需要善后：转移房主或删除空房间。
	if room.HostID == userID {
		remaining, err := s.rooms.Members(ctx, room.Code)
		if err != nil {
			return nil, err
		}
		if len(remaining) == 0 {
			// 没有成员的房间不存在：原子删除记录和集合。
			if err := s.rooms.Delete(ctx, room.Code); err != nil {
				return nil, err
			}
			logCtx.Info("Last member left, room deleted")
			return nil, nil
		}
		room.HostID = remaining[0]
		logCtx.WithField("new_host_id", room.HostID).Info("Host left, host transferred")
	}

	if err := s.touchRoom(ctx, room); err != nil {
		return nil, err
	}
	logCtx.Info("User left room")
	return room, nil
}

// Kick 由房主把目标成员移出房间。
// 返回目标成员最后已知的传输句柄，供网关强制断开对应连接。
func (s *RoomService) Kick(ctx context.Context, requesterID, code, targetID string) (string, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"room_code":    code,
		"requester_id": requesterID,
		"target_id":    targetID,
	})

	room, err := s.GetByCode(ctx, code)
	if err != nil {
		return "", err
	}
	if room.HostID != requesterID {
		logCtx.Warn("Kick rejected: requester is not host")
		return "", domain.ErrNotHost
	}
	if requesterID == targetID {
		logCtx.Warn("Kick rejected: cannot kick self")
		return "", domain.ErrCannotKickSelf
	}

	target, err := s.GetMember(ctx, targetID)
	if err != nil {
		return "", err
	}
	isMember, err := s.rooms.IsMember(ctx, room.Code, targetID)
	if err != nil {
		return "", err
	}
	if !isMember {
		return "", domain.ErrUserNotFound
	}

	if err := s.rooms.RemoveMember(ctx, room.Code, targetID); err != nil {
		return "", err
	}
	if err := s.users.Delete(ctx, targetID); err != nil {
		return "", err
	}
	if err := s.touchRoom(ctx, room); err != nil {
		return "", err
	}

	logCtx.Info("User kicked from room")
	return target.SocketID, nil
}

// UpdateHost 把房主身份转移给另一个现有成员。
func (s *RoomService) UpdateHost(ctx context.Context, requesterID, code, newHostID string) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"room_code":    code,
		"requester_id": requesterID,
		"new_host_id":  newHostID,
	})

	room, err := s.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if room.HostID != requesterID {
		logCtx.Warn("Host transfer rejected: requester is not host")
		return nil, domain.ErrNotHost
	}
	if requesterID == newHostID {
		logCtx.Warn("Host transfer rejected: target is already host")
		return nil, domain.ErrAlreadyHost
	}
	isMember, err := s.rooms.IsMember(ctx, room.Code, newHostID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, domain.ErrUserNotFound
	}

	room.HostID = newHostID
	if err := s.touchRoom(ctx, room); err != nil {
		return nil, err
	}

	logCtx.Info("Host transferred")
	return room, nil
}

// ToggleLock 由房主翻转房间的锁定状态。
func (s *RoomService) ToggleLock(ctx context.Context, requesterID, code string) (*domain.Room, error) {
	room, err := s.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if room.HostID != requesterID {
		return nil, domain.ErrNotHost
	}

	room.IsLocked = !room.IsLocked
	if err := s.touchRoom(ctx, room); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"room_code": room.Code, "is_locked": room.IsLocked}).Info("Room lock toggled")
	return room, nil
}

// Close 由房主关闭房间：删除全部成员的存在记录，
// 然后在一个原子批次中删除房间记录和成员集合。
func (s *RoomService) Close(ctx context.Context, requesterID, code string) error {
	logCtx := logrus.WithFields(logrus.Fields{"room_code": code, "requester_id": requesterID})

	room, err := s.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	if room.HostID != requesterID {
		logCtx.Warn("Close rejected: requester is not host")
		return domain.ErrNotHost
	}

	members, err := s.rooms.Members(ctx, room.Code)
	if err != nil {
		return err
	}
	if len(members) > 0 {
		if err := s.users.Delete(ctx, members...); err != nil {
			return err
		}
	}
	if err := s.rooms.Delete(ctx, room.Code); err != nil {
		return err
	}

	logCtx.WithField("member_count", len(members)).Info("Room closed")
	return nil
}

// GetByCode 读取房间快照，不存在（包括已过期）时返回 ErrRoomNotFound。
func (s *RoomService) GetByCode(ctx context.Context, code string) (*domain.Room, error) {
	room, err := s.rooms.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

// GetMember 读取一条存在记录，不存在时返回 ErrUserNotFound。
func (s *RoomService) GetMember(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// GetRoomMembers 返回房间全部成员的存在记录。
// 个别记录先于成员集合过期时被跳过。
func (s *RoomService) GetRoomMembers(ctx context.Context, code string) ([]domain.User, error) {
	ids, err := s.rooms.Members(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.users.FindByIDs(ctx, ids)
}

// UpdateConnection 标记用户已连接并记录其传输句柄。
func (s *RoomService) UpdateConnection(ctx context.Context, userID, socketID string) (*domain.User, error) {
	user, err := s.GetMember(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.IsConnected = true
	user.SocketID = socketID
	if err := s.users.Save(ctx, user, 0); err != nil { // 保留现有 TTL
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"user_id": userID, "socket_id": socketID, "room_code": user.RoomCode}).Info("User connected")
	return user, nil
}

// UpdateDisconnection 标记用户已断开并清空其传输句柄。
// 用户可能已被踢出或随房间关闭删除，调用方应容忍 ErrUserNotFound。
func (s *RoomService) UpdateDisconnection(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.GetMember(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.IsConnected = false
	user.SocketID = ""
	if err := s.users.Save(ctx, user, 0); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"user_id": userID, "room_code": user.RoomCode}).Info("User disconnected")
	return user, nil
}

// --- 私有辅助函数 ---

// reserveCode 在有限次尝试内生成并预留一个未被占用的房间码。
func (s *RoomService) reserveCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < s.reserveAttempts; attempt++ {
		code, err := s.codes.Generate()
		if err != nil {
			return "", err
		}
		reserved, err := s.rooms.ReserveCode(ctx, code, s.roomTTL)
		if err != nil {
			return "", err
		}
		if reserved {
			return code, nil
		}
		logrus.WithField("room_code", code).Warnf("Room code already reserved, retrying (attempt %d)", attempt+1)
	}
	return "", domain.ErrRoomCodeGenerationFailed
}

// touchRoom 写回房间记录并刷新房间、成员集合和全部成员记录的 TTL，
// 三者始终携带同一 TTL。
func (s *RoomService) touchRoom(ctx context.Context, room *domain.Room) error {
	room.UpdatedAt = time.Now().UTC()
	if err := s.rooms.Save(ctx, room, s.roomTTL); err != nil {
		return err
	}
	if err := s.rooms.RefreshTTL(ctx, room.Code, s.roomTTL); err != nil {
		return err
	}
	members, err := s.rooms.Members(ctx, room.Code)
	if err != nil {
		return err
	}
	for _, id := range members {
		if err := s.users.RefreshTTL(ctx, id, s.roomTTL); err != nil {
			return err
		}
	}
	return nil
}

func (s *RoomService) newUser(roomCode, displayName string) *domain.User {
	return &domain.User{
		ID:          uuid.NewString(),
		DisplayName: displayName,
		RoomCode:    roomCode,
		IsConnected: false,
		SocketID:    "",
	}
}
