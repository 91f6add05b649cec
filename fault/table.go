package fault

// DefaultTable holds the fault strings known from ManiaPlanet and TrackMania
// dedicated servers.
var DefaultTable = newDefaultTable()

func newDefaultTable() *Table {
	t := NewTable()

	t.Add(Authentication,
		"Password incorrect.",
		"Permission denied.",
	)
	t.Add(UnavailableFeature,
		"Not connected to the internet.",
		"Not connected to the masterserver.",
		"Not a game server.",
		"Not a server.",
		"Only available on client.",
		"Only available in Nations mode.",
		"Only available in mania-script mode.",
		"Only available when autosave is enabled.",
		"Only server can submit votes.",
		"Not available in this mode.",
		"Script cloud disabled.",
		"Plugin not loaded.",
	)
	t.Add(LockedFeature,
		"You must enable the callbacks to be able to do chat routing.",
		"Chat routing not enabled.",
		"Already waiting for a vote.",
		"You must stop server first.",
		"Game mode change is locked.",
		"The server is not running in relay mode.",
	)
	t.Add(UnknownPlayer,
		"Login unknown.",
		"Unknown player.",
		"Player unknown.",
		"Unknown login.",
		"Unknown player id.",
	)
	t.Add(PlayerState,
		"The player is not a spectator",
		"The player is not a spectator.",
		"Not a network player.",
		"Player is not a fake player",
		"Player is not a fake player.",
		"Player is already a spectator.",
		"Not a spectator.",
	)
	t.Add(AlreadyInList,
		"Player already ignored.",
		"Player already blacklisted.",
		"Player already on guest list.",
		"Map already added.",
		"Map already in the list.",
		"Map already in the selection.",
	)
	t.Add(NotInList,
		"Login not banned.",
		"Player not ignored.",
		"Player not blacklisted.",
		"Player not on guest list.",
		"Map not in the selection.",
		"The map isn't in the current selection.",
		"Map not found.",
		"Map not in the list.",
	)
	t.Add(IndexOutOfBound,
		"Start index out of bound.",
		"invalid index",
		"Invalid index.",
	)
	t.Add(NextMap,
		"the next map must be different from the current one.",
		"The next map must be different from the current one.",
	)
	t.Add(ChangeInProgress,
		"Change in progress.",
	)
	t.Add(InvalidMap,
		"Incompatible map type.",
		"Map not complete.",
		"Map corrupted.",
		"Map lightmap is not up to date.",
		"Map lightmap is not up to date. (will still load for now)",
		"The map doesn't exist.",
		"Map doesn't exist.",
		"Wrong map type.",
	)
	t.Add(GameMode,
		"Not in script mode.",
		"Not in Team mode.",
		"Not in Rounds or Laps mode.",
		"Not in Rounds or Team mode.",
		"The scores must be decreasing.",
		"No current script.",
		"Script not loaded.",
	)
	t.Add(ServerOptions,
		"Ladder mode unknown.",
		"You cannot change the max players count: AllowSpectatorRelays is activated.",
		"You cannot change the max spectators count: AllowSpectatorRelays is activated.",
		"Settings not modifiable.",
	)
	t.Add(File,
		"Unable to write the guest list file.",
		"Unable to write the black list file.",
		"Unable to write the playlist file.",
		"Could not save file.",
		"Could not load file.",
		"Unable to read file.",
		"Unable to write file.",
		"File not found.",
	)

	for _, r := range []struct {
		kind    Kind
		pattern string
	}{
		{UnavailableFeature, `^Unknown command '.*'\.?$`},
		{UnavailableFeature, `^Method '.*' not found\.?$`},
		{ServerOptions, `(?i)^Unknown setting '.*'\.?$`},
		{ServerOptions, `(?i)^Script settings: .*`},
		{InvalidMap, `(?i)^Map '.*' (?:not found|is not valid)\.?$`},
		{File, `(?i)^Couldn't (?:load|save|write|read) '.*'\.?$`},
		{File, `(?i)^Unable to (?:open|read|write|load) .*`},
	} {
		if err := t.AddPattern(r.kind, r.pattern); err != nil {
			panic(err)
		}
	}
	return t
}
