package main

import (
	"fmt"
	"image/color"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
)

var whitePixelImage *ebiten.Image

// ensureWhitePixel returns the 1x1 source image for untextured triangles.
func ensureWhitePixel() *ebiten.Image {
	if whitePixelImage == nil {
		whitePixelImage = ebiten.NewImage(1, 1)
		whitePixelImage.Fill(color.RGBA{R: 255, G: 255, B: 255, A: 255})
	}
	return whitePixelImage
}

// viewTransform maps world (x, z) onto the screen, fitting the grid.
type viewTransform struct {
	originX, originZ float64
	scale            float64
}

func newViewTransform(topo gridTopology) viewTransform {
	scale := math.Min(float64(screenW)/topo.XSize, float64(screenH)/topo.ZSize)
	return viewTransform{originX: topo.XOrigin, originZ: topo.ZOrigin, scale: scale}
}

func (v viewTransform) project(x, z float64) (float32, float32) {
	return float32((x - v.originX) * v.scale), float32((z - v.originZ) * v.scale)
}

// waterShade maps an elevation and the normal's vertical component to RGB.
func waterShade(height, normalY, boundsY float64) (r, g, b float32) {
	t := 0.5
	if boundsY > 0 {
		t = 0.5 + 0.5*math.Max(-1, math.Min(1, height/(0.05*boundsY)))
	}
	light := 0.6 + 0.4*math.Max(0, math.Min(1, normalY))
	r = float32((0.05 + 0.35*t) * light)
	g = float32((0.25 + 0.45*t) * light)
	b = float32((0.45 + 0.5*t) * light)
	return r, g, b
}

// surfaceVertices fills dst with one screen vertex per surface vertex.
func surfaceVertices(dst []ebiten.Vertex, s *surfaceStorage, view viewTransform, boundsY float64) []ebiten.Vertex {
	n := s.VertexCount()
	if cap(dst) < n {
		dst = make([]ebiten.Vertex, n)
	}
	dst = dst[:n]
	for i := 0; i < n; i++ {
		x := float64(s.Positions[3*i])
		h := float64(s.Positions[3*i+1])
		z := float64(s.Positions[3*i+2])
		sx, sy := view.project(x, z)
		r, g, b := waterShade(h, float64(s.Normals[3*i+1]), boundsY)
		dst[i] = ebiten.Vertex{
			DstX: sx, DstY: sy,
			SrcX: 0.5, SrcY: 0.5,
			ColorR: r, ColorG: g, ColorB: b, ColorA: 1,
		}
	}
	return dst
}

// Draw renders the water surface, the vessels and the optional overlay.
func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(color.RGBA{R: 8, G: 20, B: 40, A: 255})
	storage, indices, err := g.assembler.mesh()
	topo := g.assembler.topology()
	if err == nil && storage.VertexCount() > 0 && storage.VertexCount() == len(indices) {
		view := newViewTransform(topo)
		g.verts = surfaceVertices(g.verts, storage, view, g.assembler.cfg.BoundsY)
		var op ebiten.DrawTrianglesOptions
		screen.DrawTriangles32(g.verts, indices, ensureWhitePixel(), &op)
		g.drawWalls(screen, view)
		g.drawVessels(screen, view)
	}

	if g.debug {
		stats := g.assembler.statistics()
		fn := 0.0
		if len(g.vessels) > 0 {
			fn = g.vessels[g.selected].lengthFroude()
		}
		debugMsg := fmt.Sprintf("FPS: %.1f\nTPS: %.1f\nQuads: %d (%dx%d, [ and ])\nStride: %d  Units: %d\nEvaluator: %s\nAllocations: %d  Failures: %d\nTick: %.2f ms\nVessel %d Fn: %.3f",
			ebiten.ActualFPS(), ebiten.ActualTPS(),
			topo.QuadCount, topo.XQuadCount, topo.ZQuadCount,
			stats.Stride, stats.LastUnits,
			g.evaluatorName,
			stats.Reallocations, stats.DispatchFailures,
			stats.LastTick.Seconds()*1000,
			g.selected, fn)
		ebitenutil.DebugPrint(screen, debugMsg)
	}
}

// Layout reports the logical screen size used by Ebiten.
func (g *Game) Layout(_, _ int) (int, int) { return screenW, screenH }

func (g *Game) drawVessels(screen *ebiten.Image, view viewTransform) {
	for i, v := range g.vessels {
		c := color.RGBA{R: 230, G: 230, B: 230, A: 255}
		if i == g.selected {
			c = color.RGBA{R: 255, G: 60, B: 40, A: 255}
		}
		half := v.hull.Length / 2
		dx := math.Cos(v.state.Heading)
		dz := math.Sin(v.state.Heading)
		steps := int(v.hull.Length*view.scale) + 1
		for s := 0; s <= steps; s++ {
			t := -half + v.hull.Length*float64(s)/float64(steps)
			px, py := view.project(v.state.Position.X+dx*t, v.state.Position.Z+dz*t)
			screen.Set(int(px), int(py), c)
		}
	}
}

func (g *Game) drawWalls(screen *ebiten.Image, view viewTransform) {
	wallColor := color.RGBA{R: 200, G: 180, B: 120, A: 255}
	for _, w := range g.walls.segments[:g.walls.realCount()] {
		ax, ay := view.project(w.A.X, w.A.Z)
		bx, by := view.project(w.B.X, w.B.Z)
		steps := int(math.Hypot(float64(bx-ax), float64(by-ay))) + 1
		for s := 0; s <= steps; s++ {
			t := float32(s) / float32(steps)
			screen.Set(int(ax+(bx-ax)*t), int(ay+(by-ay)*t), wallColor)
		}
	}
}
