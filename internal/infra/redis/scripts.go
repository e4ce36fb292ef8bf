package redis

import "github.com/redis/go-redis/v9"

// Script results. Negative values are rejections mapped to domain errors.
const (
	resultOK          = 1
	resultUnchanged   = 0
	resultNotFound    = -1
	resultWrongStatus = -2
	resultFull        = -3
	resultNoMember    = -4
	resultDuplicate   = -5
)

// touchRoomLua defines touch(room, roster, ttl), which pushes back the
// expiry of every key of a room. Each mutating script calls it so a room
// only expires after ttl without any writes, whatever its status.
const touchRoomLua = `
local function touch(room, roster, ttl)
  if tonumber(ttl) <= 0 then
    return
  end
  redis.call('PEXPIRE', room, ttl)
  redis.call('PEXPIRE', roster, ttl)
  for _, uid in ipairs(redis.call('ZRANGE', roster, 0, -1)) do
    redis.call('PEXPIRE', room .. ':member:' .. uid, ttl)
    redis.call('PEXPIRE', room .. ':answers:' .. uid, ttl)
    redis.call('PEXPIRE', room .. ':answerlog:' .. uid, ttl)
  end
end
`

// createRoomScript claims a code unless a live room still owns it.
// KEYS: room, roster, host member
// ARGV: now, ttl ms, host id, room field/value pairs...
var createRoomScript = redis.NewScript(touchRoomLua + `
local status = redis.call('HGET', KEYS[1], 'status')
if status == 'in_progress' then
  return 0
end
if status == 'waiting' and tonumber(ARGV[1]) <= tonumber(redis.call('HGET', KEYS[1], 'expiresAt')) then
  return 0
end
if status then
  local stale = redis.call('ZRANGE', KEYS[2], 0, -1)
  for _, uid in ipairs(stale) do
    redis.call('DEL', KEYS[1] .. ':member:' .. uid, KEYS[1] .. ':answers:' .. uid, KEYS[1] .. ':answerlog:' .. uid)
  end
  redis.call('DEL', KEYS[1], KEYS[2])
end
redis.call('HSET', KEYS[1], unpack(ARGV, 4))
redis.call('HSET', KEYS[1], 'seq', 1, 'active', 1)
redis.call('HSET', KEYS[3], 'userId', ARGV[3], 'status', 'ready', 'score', 0, 'rank', 0, 'seq', 1, 'joinedAt', ARGV[1])
redis.call('ZADD', KEYS[2], 1, ARGV[3])
touch(KEYS[1], KEYS[2], ARGV[2])
return 1
`)

// addParticipantScript checks status, expiry, membership and capacity and
// inserts in one step. A left member is re-activated with its old history.
// KEYS: room, roster, member
// ARGV: user id, now, participant status, ttl ms
var addParticipantScript = redis.NewScript(touchRoomLua + `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
local room = redis.call('HMGET', KEYS[1], 'status', 'expiresAt', 'maxParticipants', 'active')
if room[1] ~= 'waiting' or tonumber(ARGV[2]) > tonumber(room[2]) then
  return -2
end
local existing = redis.call('HGET', KEYS[3], 'status')
if existing and existing ~= 'left' then
  return 0
end
if tonumber(room[4]) >= tonumber(room[3]) then
  return -3
end
if existing then
  redis.call('HSET', KEYS[3], 'status', ARGV[3])
else
  local seq = redis.call('HINCRBY', KEYS[1], 'seq', 1)
  redis.call('HSET', KEYS[3], 'userId', ARGV[1], 'status', ARGV[3], 'score', 0, 'rank', 0, 'seq', seq, 'joinedAt', ARGV[2])
  redis.call('ZADD', KEYS[2], seq, ARGV[1])
end
redis.call('HINCRBY', KEYS[1], 'active', 1)
touch(KEYS[1], KEYS[2], ARGV[4])
return 1
`)

// transitionScript is a compare-and-set on the room status.
// KEYS: room, roster
// ARGV: from, to, at, timestamp field or '', participant status or '', ttl ms
var transitionScript = redis.NewScript(touchRoomLua + `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
if redis.call('HGET', KEYS[1], 'status') ~= ARGV[1] then
  return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[2])
if ARGV[4] ~= '' then
  redis.call('HSET', KEYS[1], ARGV[4], ARGV[3])
end
if ARGV[5] ~= '' then
  local members = redis.call('ZRANGE', KEYS[2], 0, -1)
  for _, uid in ipairs(members) do
    local key = KEYS[1] .. ':member:' .. uid
    if redis.call('HGET', key, 'status') ~= 'left' then
      redis.call('HSET', key, 'status', ARGV[5])
    end
  end
end
touch(KEYS[1], KEYS[2], ARGV[6])
return 1
`)

// appendAnswerScript records the first answer per question and adds its reward.
// KEYS: room, member, answers, answer log, roster
// ARGV: question id, encoded answer, reward, ttl ms
var appendAnswerScript = redis.NewScript(touchRoomLua + `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
if redis.call('HGET', KEYS[1], 'status') ~= 'in_progress' then
  return -2
end
local status = redis.call('HGET', KEYS[2], 'status')
if not status or status == 'left' then
  return -4
end
if redis.call('HSETNX', KEYS[3], ARGV[1], ARGV[2]) == 0 then
  return -5
end
redis.call('RPUSH', KEYS[4], ARGV[2])
redis.call('HINCRBY', KEYS[2], 'score', ARGV[3])
touch(KEYS[1], KEYS[5], ARGV[4])
return 1
`)

// markLeftScript flags a member as left and frees its seat.
// KEYS: room, member, roster
// ARGV: ttl ms
var markLeftScript = redis.NewScript(touchRoomLua + `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
local status = redis.call('HGET', KEYS[2], 'status')
if not status then
  return -4
end
if status ~= 'left' then
  redis.call('HSET', KEYS[2], 'status', 'left')
  redis.call('HINCRBY', KEYS[1], 'active', -1)
end
touch(KEYS[1], KEYS[3], ARGV[1])
return 1
`)
