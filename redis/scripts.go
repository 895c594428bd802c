package redis

import "github.com/redis/go-redis/v9"

// All scripts operate on the keys returned by Store.keys(), which share a
// hash tag so they live in the same cluster slot.
//
//	KEYS[1] records  hash    member -> JSON payload
//	KEYS[2] order    zset    member -> insertion sequence
//	KEYS[3] checked  zset    member -> checked_at (unix ms)
//	KEYS[4] contents set     content IDs owning at least one record
//	KEYS[5] seq      string  insertion sequence counter
//	KEYS[6] content  set     members owned by a single content item

const deleteContentLua = `
local function delete_content(cid)
  local members = redis.call('SMEMBERS', KEYS[6])
  for _, m in ipairs(members) do
    redis.call('HDEL', KEYS[1], m)
    redis.call('ZREM', KEYS[2], m)
    redis.call('ZREM', KEYS[3], m)
  end
  redis.call('DEL', KEYS[6])
  redis.call('SREM', KEYS[4], cid)
end

local function insert(cid, member, payload, checked)
  if redis.call('HSETNX', KEYS[1], member, payload) == 0 then
    return 0
  end
  local seq = redis.call('INCR', KEYS[5])
  redis.call('ZADD', KEYS[2], seq, member)
  redis.call('ZADD', KEYS[3], checked, member)
  redis.call('SADD', KEYS[4], cid)
  redis.call('SADD', KEYS[6], member)
  return 1
end
`

var (
	// ARGV: cid, member, payload, checked
	insertScript = redis.NewScript(deleteContentLua + `
return insert(ARGV[1], ARGV[2], ARGV[3], ARGV[4])
`)

	// ARGV: cid
	deleteScript = redis.NewScript(deleteContentLua + `
delete_content(ARGV[1])
return 1
`)

	// ARGV: cid, then (member, payload, checked) triples. Returns one
	// insert flag per triple.
	replaceScript = redis.NewScript(deleteContentLua + `
delete_content(ARGV[1])
local flags = {}
for i = 2, #ARGV, 3 do
  flags[#flags + 1] = insert(ARGV[1], ARGV[i], ARGV[i + 1], ARGV[i + 2])
end
return flags
`)

	recordsScript = redis.NewScript(`
local members = redis.call('ZRANGE', KEYS[2], 0, -1)
local out = {}
for i, m in ipairs(members) do
  out[i] = redis.call('HGET', KEYS[1], m)
end
return out
`)
)
