package session

import (
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/goGuard/device"
)

// Hash field names. Timestamps are unix milliseconds.
const (
	fieldUser     = "uid"
	fieldCreated  = "created"
	fieldLast     = "last"
	fieldExpires  = "expires"
	fieldUA       = "ua"
	fieldBrowser  = "browser"
	fieldOS       = "os"
	fieldDevice   = "device"
	fieldMobile   = "mobile"
	fieldIP       = "ip"
	fieldActive   = "active"
	flagTrue      = "1"
	flagFalse     = "0"
	unknownClient = "unknown"
)

// createArgs returns ARGV for the create script, in script order.
func createArgs(s *Session) []any {
	return []any{
		s.SessionID,
		s.UserID,
		s.CreatedAt.UnixMilli(),
		s.ExpiresAt.UnixMilli(),
		s.DeviceInfo.UserAgent,
		s.DeviceInfo.Browser,
		s.DeviceInfo.OS,
		s.DeviceInfo.Device,
		flag(s.DeviceInfo.IsMobile),
		s.IPAddress,
	}
}

func decodeHash(sessionID string, vals map[string]string) (*Session, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	userID := vals[fieldUser]
	if userID == "" {
		return nil, fmt.Errorf("%w: missing owner", ErrCorrupt)
	}

	created, err := msTime(vals[fieldCreated])
	if err != nil {
		return nil, fmt.Errorf("%w: created: %v", ErrCorrupt, err)
	}
	last, err := msTime(vals[fieldLast])
	if err != nil {
		return nil, fmt.Errorf("%w: last: %v", ErrCorrupt, err)
	}
	expires, err := msTime(vals[fieldExpires])
	if err != nil {
		return nil, fmt.Errorf("%w: expires: %v", ErrCorrupt, err)
	}

	return &Session{
		SessionID:      sessionID,
		UserID:         userID,
		CreatedAt:      created,
		LastActivityAt: last,
		ExpiresAt:      expires,
		DeviceInfo: device.Info{
			UserAgent: vals[fieldUA],
			Browser:   vals[fieldBrowser],
			OS:        vals[fieldOS],
			Device:    vals[fieldDevice],
			IsMobile:  vals[fieldMobile] == flagTrue,
		},
		IPAddress: vals[fieldIP],
		IsActive:  vals[fieldActive] == flagTrue,
	}, nil
}

// pairsToMap converts a flat HGETALL reply returned from Lua.
func pairsToMap(v any) (map[string]string, error) {
	list, ok := v.([]any)
	if !ok || len(list)%2 != 0 {
		return nil, fmt.Errorf("%w: invalid hash reply", ErrRedisUnavailable)
	}
	out := make(map[string]string, len(list)/2)
	for i := 0; i < len(list); i += 2 {
		k, kok := list[i].(string)
		val, vok := list[i+1].(string)
		if !kok || !vok {
			return nil, fmt.Errorf("%w: invalid hash reply", ErrRedisUnavailable)
		}
		out[k] = val
	}
	return out, nil
}

func msTime(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

func flag(b bool) string {
	if b {
		return flagTrue
	}
	return flagFalse
}
