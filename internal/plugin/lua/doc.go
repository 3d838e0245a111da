// Package lua hosts plugins written as Lua scripts. Each plugin lives
// in its own directory as plugin.lua, runs in a sandboxed interpreter
// state, and is adapted to the host's plugin contract.
package lua
