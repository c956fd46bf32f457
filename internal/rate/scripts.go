package rate

import "github.com/redis/go-redis/v9"

// All times are unix milliseconds. A missing hash is an absent record.

// checkScript mirrors decide.
// KEYS[1] record key
// ARGV[1] now, ARGV[2] window, ARGV[3] max attempts, ARGV[4] lockout
// Returns {allowed, remaining, resetInMs}.
const checkScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local lockout = tonumber(ARGV[4])

if redis.call('EXISTS', key) == 0 then
  return {1, max, window}
end

local vals = redis.call('HMGET', key, 'attempts', 'first', 'locked')
local attempts = tonumber(vals[1]) or 0
local first = tonumber(vals[2]) or 0
local locked = tonumber(vals[3]) or 0

if locked > now then
  return {0, 0, locked - now}
end
if now - first > window then
  redis.call('DEL', key)
  return {1, max, window}
end
if attempts >= max then
  locked = now + lockout
  local expires = first + window
  if locked > expires then
    expires = locked
  end
  redis.call('HSET', key, 'locked', locked, 'expires', expires)
  redis.call('PEXPIREAT', key, expires)
  return {0, 0, lockout}
end
return {1, max - attempts, window - (now - first)}
`

// failScript mirrors countFailure.
// KEYS[1] record key
// ARGV[1] now, ARGV[2] window
// Returns {attempts, first, locked, expires}.
const failScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local attempts, first, locked = 1, now, 0
if redis.call('EXISTS', key) == 1 then
  local vals = redis.call('HMGET', key, 'attempts', 'first', 'locked')
  local curFirst = tonumber(vals[2]) or 0
  local curLocked = tonumber(vals[3]) or 0
  if now - curFirst > window then
    if curLocked > now then
      locked = curLocked
    end
  else
    attempts = (tonumber(vals[1]) or 0) + 1
    first = curFirst
    locked = curLocked
  end
end

local expires = first + window
if locked > expires then
  expires = locked
end

redis.call('DEL', key)
if locked > 0 then
  redis.call('HSET', key, 'attempts', attempts, 'first', first, 'locked', locked, 'expires', expires)
else
  redis.call('HSET', key, 'attempts', attempts, 'first', first, 'expires', expires)
end
redis.call('PEXPIREAT', key, expires)
return {attempts, first, locked, expires}
`

// sweepScript mirrors Record.staleAt.
// KEYS[1] record key
// ARGV[1] now, ARGV[2] fallback window
// Returns 1 when the record was deleted.
const sweepScript = `
local key = KEYS[1]
if redis.call('EXISTS', key) == 0 then
  return 0
end
local now = tonumber(ARGV[1])
local fallback = tonumber(ARGV[2])
local vals = redis.call('HMGET', key, 'first', 'locked', 'expires')
local first = tonumber(vals[1]) or 0
local locked = tonumber(vals[2]) or 0
local expires = tonumber(vals[3]) or 0

if locked > now then
  return 0
end
if expires > 0 then
  if now < expires then
    return 0
  end
elseif now - first <= fallback then
  return 0
end
redis.call('DEL', key)
return 1
`

var (
	checkLua = redis.NewScript(checkScript)
	failLua  = redis.NewScript(failScript)
	sweepLua = redis.NewScript(sweepScript)
)
