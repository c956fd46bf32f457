package session

import "github.com/redis/go-redis/v9"

// User index keys are read from the session hash, so some scripts build
// them from ARGV instead of KEYS. Store keys share one hash tag, which keeps
// those keys in the slot of KEYS[1].

// Script status codes.
const (
	statusAbsent  int64 = 0
	statusExpired int64 = 1
	statusRevoked int64 = 2
	statusValid   int64 = 3
)

// KEYS: session, user index, expiry set.
// ARGV: sid, uid, created, expires, ua, browser, os, device, mobile, ip.
const createScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1],
  "uid", ARGV[2],
  "created", ARGV[3],
  "last", ARGV[3],
  "expires", ARGV[4],
  "ua", ARGV[5],
  "browser", ARGV[6],
  "os", ARGV[7],
  "device", ARGV[8],
  "mobile", ARGV[9],
  "ip", ARGV[10],
  "active", "1")
redis.call("SADD", KEYS[2], ARGV[1])
redis.call("ZADD", KEYS[3], ARGV[4], ARGV[1])
return 1
`

// KEYS: session. ARGV: sid, now ms, user index prefix.
const validateScript = `
local vals = redis.call("HMGET", KEYS[1], "uid", "expires", "active")
if not vals[1] then
  return {0}
end
local now = tonumber(ARGV[2])
if (tonumber(vals[2]) or 0) <= now then
  redis.call("HSET", KEYS[1], "active", "0")
  redis.call("SREM", ARGV[3] .. vals[1], ARGV[1])
  return {1}
end
if vals[3] ~= "1" then
  return {2}
end
redis.call("HSET", KEYS[1], "last", ARGV[2])
return {3, redis.call("HGETALL", KEYS[1])}
`

// KEYS: session. ARGV: sid, uid (empty skips the owner check), user index prefix.
// Returns 1 when revoked, 0 when absent or already inactive, -1 on owner mismatch.
const revokeScript = `
local vals = redis.call("HMGET", KEYS[1], "uid", "active")
if not vals[1] then
  if ARGV[2] ~= "" then
    redis.call("SREM", ARGV[3] .. ARGV[2], ARGV[1])
  end
  return 0
end
if ARGV[2] ~= "" and vals[1] ~= ARGV[2] then
  return -1
end
redis.call("SREM", ARGV[3] .. vals[1], ARGV[1])
if vals[2] ~= "1" then
  return 0
end
redis.call("HSET", KEYS[1], "active", "0")
return 1
`

// KEYS: session. ARGV: sid, now ms, user index prefix.
// Deactivates the session only if it is still expired.
const expireScript = `
local vals = redis.call("HMGET", KEYS[1], "uid", "expires")
if not vals[1] then
  return 0
end
if (tonumber(vals[2]) or 0) > tonumber(ARGV[2]) then
  return 0
end
redis.call("HSET", KEYS[1], "active", "0")
redis.call("SREM", ARGV[3] .. vals[1], ARGV[1])
return 1
`

// KEYS: session, expiry set. ARGV: sid, additional ms.
const extendScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
local expires = redis.call("HINCRBY", KEYS[1], "expires", ARGV[2])
redis.call("ZADD", KEYS[2], expires, ARGV[1])
return expires
`

// KEYS: session, expiry set. ARGV: sid, now ms, user index prefix.
const sweepScript = `
local vals = redis.call("HMGET", KEYS[1], "uid", "expires")
if vals[1] and (tonumber(vals[2]) or 0) > tonumber(ARGV[2]) then
  redis.call("ZADD", KEYS[2], vals[2], ARGV[1])
  return 0
end
redis.call("ZREM", KEYS[2], ARGV[1])
if not vals[1] then
  return 0
end
redis.call("SREM", ARGV[3] .. vals[1], ARGV[1])
redis.call("DEL", KEYS[1])
return 1
`

var (
	createLua   = redis.NewScript(createScript)
	validateLua = redis.NewScript(validateScript)
	revokeLua   = redis.NewScript(revokeScript)
	expireLua   = redis.NewScript(expireScript)
	extendLua   = redis.NewScript(extendScript)
	sweepLua    = redis.NewScript(sweepScript)
)
