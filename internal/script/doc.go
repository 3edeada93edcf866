// Package script runs Lua listeners on an event bus.
//
// A script declares handlers at load time through the evbus module:
//
//	evbus.on("user.created", "high", function(ev, name)
//	  evbus.log("welcome " .. ev.email)
//	  if ev.email == "" then
//	    return "missing email"
//	  end
//	end)
//
// Events reach Lua as tables decoded from their JSON form. A handler fails
// when it raises an error or returns a string or false; returning nothing
// or true is success.
//
// evbus.post(name, table) queues an event for the bus. Queued events are
// posted after the current handler returns, so a script never re-enters
// its own Lua state.
//
// Scripts run in a sandbox with the base, table, string and math libraries
// only. File loading and module loading are removed and print is
// redirected to the logger.
//
// Each script owns one Lua state guarded by a mutex, so its handlers are
// serialised even when events are posted from several goroutines.
package script
