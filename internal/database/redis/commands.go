package redis

// commands lists the Redis commands that may be dispatched by name.
// Commands that change session state shared by every logical name on the
// connection (SELECT, AUTH, HELLO, QUIT, RESET, CLIENT, MULTI/EXEC/WATCH,
// SUBSCRIBE and friends) are not dispatchable.
var commands = toSet(
	// keys
	"copy", "del", "dump", "exists", "expire", "expireat", "expiretime",
	"keys", "move", "persist", "pexpire", "pexpireat", "pexpiretime", "pttl",
	"randomkey", "rename", "renamenx", "restore", "scan", "sort", "touch",
	"ttl", "type", "unlink",

	// strings
	"append", "decr", "decrby", "get", "getdel", "getex", "getrange", "getset",
	"incr", "incrby", "incrbyfloat", "mget", "mset", "msetnx", "psetex", "set",
	"setex", "setnx", "setrange", "strlen",

	// hashes
	"hdel", "hexists", "hget", "hgetall", "hincrby", "hincrbyfloat", "hkeys",
	"hlen", "hmget", "hmset", "hrandfield", "hscan", "hset", "hsetnx",
	"hstrlen", "hvals",

	// lists
	"lindex", "linsert", "llen", "lmove", "lpop", "lpos", "lpush", "lpushx",
	"lrange", "lrem", "lset", "ltrim", "rpop", "rpoplpush", "rpush", "rpushx",

	// sets
	"sadd", "scard", "sdiff", "sdiffstore", "sinter", "sintercard",
	"sinterstore", "sismember", "smembers", "smismember", "smove", "spop",
	"srandmember", "srem", "sscan", "sunion", "sunionstore",

	// sorted sets
	"zadd", "zcard", "zcount", "zincrby", "zmscore", "zpopmax", "zpopmin",
	"zrange", "zrangebyscore", "zrangestore", "zrank", "zrem",
	"zremrangebyrank", "zremrangebyscore", "zrevrange", "zrevrangebyscore",
	"zrevrank", "zscan", "zscore",

	// hyperloglog and bitmaps
	"pfadd", "pfcount", "pfmerge", "bitcount", "bitop", "bitpos", "getbit",
	"setbit",

	// streams
	"xack", "xadd", "xdel", "xlen", "xrange", "xread", "xrevrange", "xtrim",

	// scripting and pub/sub publish side
	"eval", "evalsha", "publish",

	// server
	"dbsize", "echo", "flushdb", "info", "ping", "time",
)

func toSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}
