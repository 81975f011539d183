package maze

import "slices"

// Pathfind returns the shortest walkable path from start to end, inclusive of
// both endpoints. When start equals an in-bounds end the path is [start].
// Otherwise it returns an empty slice if end is unreachable from start
// (out of bounds, on a collision tile, or cut off by collision tiles) rather
// than looping forever or reconstructing a bogus partial path.
func (m *Maze) Pathfind(start, end TilePos) []TilePos {
	if end.Y < 0 || end.Y >= len(m.tiles) || end.X < 0 || end.X >= len(m.tiles[end.Y]) {
		return []TilePos{}
	}
	if start == end {
		return []TilePos{start}
	}
	if m.collisionInfo[end.Y][end.X] {
		return []TilePos{}
	}

	makeStep := func(d [][]int, k int) bool {
		grew := false
		for i := 0; i < len(d); i += 1 {
			for j := 0; j < len(d[i]); j += 1 {
				if d[i][j] != k {
					continue
				}
				if i > 0 && d[i-1][j] == 0 && !m.collisionInfo[i-1][j] {
					d[i-1][j] = k + 1
					grew = true
				}
				if j > 0 && d[i][j-1] == 0 && !m.collisionInfo[i][j-1] {
					d[i][j-1] = k + 1
					grew = true
				}
				if i < len(d)-1 && d[i+1][j] == 0 && !m.collisionInfo[i+1][j] {
					d[i+1][j] = k + 1
					grew = true
				}
				if j < len(d[i])-1 && d[i][j+1] == 0 && !m.collisionInfo[i][j+1] {
					d[i][j+1] = k + 1
					grew = true
				}
			}
		}
		return grew
	}

	// NOTE(Friso): Remember the maze is height*width so we mirror that here
	distMaze := make([][]int, 0, len(m.tiles))
	for i := range m.tiles {
		distMaze = append(distMaze, make([]int, len(m.tiles[i])))
	}

	// NOTE(Friso): Remember the maze is height*width
	distMaze[start.Y][start.X] = 1

	k := 0
	loopMax := 150

	// NOTE(Friso): Remember the maze is height*width. The frontier stops
	// growing once it has flooded every tile it can reach, so bail out as
	// soon as a step makes no progress instead of burning the full budget.
	for distMaze[end.Y][end.X] == 0 && loopMax > 0 {
		k += 1
		if grew := makeStep(distMaze, k); !grew {
			break
		}

		loopMax -= 1
	}

	if distMaze[end.Y][end.X] == 0 {
		return []TilePos{}
	}

	// NOTE(Friso): Remember the maze is height*width
	i, j := end.Y, end.X
	k = distMaze[i][j]
	path := append(make([]TilePos, 0, k), end)
	for k > 1 {
		if i > 0 && distMaze[i-1][j] == k-1 {
			i = i - 1
			path = append(path, TilePos{Y: i, X: j})
			k -= 1
		} else if j > 0 && distMaze[i][j-1] == k-1 {
			j = j - 1
			path = append(path, TilePos{Y: i, X: j})
			k -= 1
		} else if i < len(distMaze)-1 && distMaze[i+1][j] == k-1 {
			i = i + 1
			path = append(path, TilePos{Y: i, X: j})
			k -= 1
		} else if j < len(distMaze[i])-1 && distMaze[i][j+1] == k-1 {
			j = j + 1
			path = append(path, TilePos{Y: i, X: j})
			k -= 1
		}
	}

	slices.Reverse(path)

	return path
}
