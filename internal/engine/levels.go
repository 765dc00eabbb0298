package engine

const (
	MinDifficulty = 1
	MaxDifficulty = 8

	defaultThreads = 2
)

// Level is the engine preset for one difficulty.
type Level struct {
	Difficulty     int
	SkillLevel     int
	Elo            int
	Threads        int
	HashMB         int
	MoveTimeMillis int
	DepthCap       int
}

var levels = [MaxDifficulty]Level{
	{Difficulty: 1, SkillLevel: 0, Elo: 600, Threads: defaultThreads, HashMB: 16, MoveTimeMillis: 20, DepthCap: 5},
	{Difficulty: 2, SkillLevel: 0, Elo: 700, Threads: defaultThreads, HashMB: 16, MoveTimeMillis: 60, DepthCap: 6},
	{Difficulty: 3, SkillLevel: 1, Elo: 800, Threads: defaultThreads, HashMB: 24, MoveTimeMillis: 80, DepthCap: 8},
	{Difficulty: 4, SkillLevel: 3, Elo: 1000, Threads: defaultThreads, HashMB: 32, MoveTimeMillis: 140, DepthCap: 10},
	{Difficulty: 5, SkillLevel: 7, Elo: 1200, Threads: defaultThreads, HashMB: 48, MoveTimeMillis: 200, DepthCap: 12},
	{Difficulty: 6, SkillLevel: 11, Elo: 1400, Threads: defaultThreads, HashMB: 64, MoveTimeMillis: 300, DepthCap: 16},
	{Difficulty: 7, SkillLevel: 16, Elo: 1650, Threads: defaultThreads, HashMB: 96, MoveTimeMillis: 500, DepthCap: 20},
	{Difficulty: 8, SkillLevel: 20, Elo: 0, Threads: 6, HashMB: 128, MoveTimeMillis: 1000, DepthCap: 30},
}

// LevelFor returns the preset for d, clamped to 1..8.
func LevelFor(d int) Level {
	return levels[ClampDifficulty(d)-1]
}

func ClampDifficulty(d int) int {
	return min(max(d, MinDifficulty), MaxDifficulty)
}

// ValidDifficulty reports whether d names a preset.
func ValidDifficulty(d int) bool {
	return d >= MinDifficulty && d <= MaxDifficulty
}

func (l Level) Options() Options {
	return Options{Threads: l.Threads, SkillLevel: l.SkillLevel, HashMB: l.HashMB, Elo: l.Elo}
}

func (l Level) Limits() Limits {
	return Limits{Depth: l.DepthCap, MoveTimeMillis: l.MoveTimeMillis}
}
