// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/mlnoga/stainlight/internal/ops"
	"github.com/mlnoga/stainlight/internal/ops/augment"
	"github.com/mlnoga/stainlight/internal/ops/norm"
	"github.com/mlnoga/stainlight/internal/ops/pre"
)

// Settings shared by all requests
type Server struct {
	MaxThreads    int // 0 for the context default
	PatchMemoryMB int // 0 for the context default
}

// Returns the router with all API routes
func (s *Server) Router() *gin.Engine {
	r := gin.Default()
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.POST("/normalize", s.postNormalize)
			v1.POST("/reinhard", s.postReinhard)
			v1.POST("/augment", s.postAugment)
			v1.POST("/hematoxylin", s.postHematoxylin)
			v1.POST("/stains", s.postStains)
			v1.POST("/run", s.postRun)
		}
	}
	return r
}

// Listens and serves on the given port until failure
func (s *Server) Serve(port int) error {
	return s.Router().Run(fmt.Sprintf(":%d", port))
}

func getPing(c *gin.Context) {
	c.JSON(200, gin.H{
		"message": "pong",
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

// Serializes writes from parallel operators onto the response, flushing each
type flushWriter struct {
	mutex sync.Mutex
	w     gin.ResponseWriter
}

func (fw *flushWriter) Write(p []byte) (n int, err error) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	n, err = fw.w.Write(p)
	fw.w.Flush()
	return n, err
}

// Binds the request arguments, or answers with 400 and returns false
func bindArgs(c *gin.Context, args interface{}, filePatterns *[]string) bool {
	if err := c.ShouldBindJSON(args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	if len(*filePatterns) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no filePatterns given"})
		return false
	}
	for _, p := range *filePatterns {
		if !ops.IsPathAllowed(p) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("file pattern %s outside current directory tree", p)})
			return false
		}
	}
	return true
}

// Streams a text log of loading the files, applying the operator and saving the results
func (s *Server) run(c *gin.Context, args interface{}, filePatterns []string, op ops.Operator, save *ops.OpSave) {
	header := c.Writer.Header()
	header.Set("Content-Type", "text/plain")
	c.Writer.WriteHeader(http.StatusOK)
	logWriter := &flushWriter{w: c.Writer}

	if err := printArgs(logWriter, "Arguments:\n", "\n", args); err != nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}
	if err := s.execute(logWriter, filePatterns, op, save); err != nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
	}
}

func (s *Server) execute(logWriter io.Writer, filePatterns []string, op ops.Operator, save *ops.OpSave) error {
	ctx := ops.NewContext(logWriter)
	if s.MaxThreads > 0 {
		ctx.MaxThreads = s.MaxThreads
	}
	if s.PatchMemoryMB > 0 {
		ctx.PatchMemoryMB = s.PatchMemoryMB
	}
	seq := ops.NewOpSequence(ops.NewOpLoadMany(filePatterns), op)
	if save != nil {
		seq.Append(save)
	}
	promises, err := seq.MakePromises(nil, ctx)
	if err != nil {
		return err
	}
	if _, err := ops.MaterializeAll(promises, ctx.Parallelism(), true); err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "Done.\n")
	return nil
}

type postNormalizeArgs struct {
	FilePatterns []string               `json:"filePatterns"`
	Normalize    *norm.OpStainNormalize `json:"normalize"`
	Save         *ops.OpSave            `json:"save"`
}

func (s *Server) postNormalize(c *gin.Context) {
	var args postNormalizeArgs
	if !bindArgs(c, &args, &args.FilePatterns) {
		return
	}
	if args.Normalize == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing normalize"})
		return
	}
	s.run(c, args, args.FilePatterns, args.Normalize, args.Save)
}

type postReinhardArgs struct {
	FilePatterns []string         `json:"filePatterns"`
	Reinhard     *norm.OpReinhard `json:"reinhard"`
	Save         *ops.OpSave      `json:"save"`
}

func (s *Server) postReinhard(c *gin.Context) {
	var args postReinhardArgs
	if !bindArgs(c, &args, &args.FilePatterns) {
		return
	}
	if args.Reinhard == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing reinhard"})
		return
	}
	s.run(c, args, args.FilePatterns, args.Reinhard, args.Save)
}

type postAugmentArgs struct {
	FilePatterns []string           `json:"filePatterns"`
	Augment      *augment.OpAugment `json:"augment"`
	Save         *ops.OpSave        `json:"save"`
}

func (s *Server) postAugment(c *gin.Context) {
	var args postAugmentArgs
	if !bindArgs(c, &args, &args.FilePatterns) {
		return
	}
	if args.Augment == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing augment"})
		return
	}
	s.run(c, args, args.FilePatterns, args.Augment, args.Save)
}

type postHematoxylinArgs struct {
	FilePatterns []string            `json:"filePatterns"`
	Hematoxylin  *norm.OpHematoxylin `json:"hematoxylin"`
	Save         *ops.OpSave         `json:"save"`
}

func (s *Server) postHematoxylin(c *gin.Context) {
	var args postHematoxylinArgs
	if !bindArgs(c, &args, &args.FilePatterns) {
		return
	}
	if args.Hematoxylin == nil {
		args.Hematoxylin = norm.NewOpHematoxylinDefault()
	}
	s.run(c, args, args.FilePatterns, args.Hematoxylin, args.Save)
}

type postStainsArgs struct {
	FilePatterns []string            `json:"filePatterns"`
	TissueMask   *pre.OpTissueMask   `json:"tissueMask"`
	StainMatrix  *norm.OpStainMatrix `json:"stainMatrix"`
}

func (s *Server) postStains(c *gin.Context) {
	var args postStainsArgs
	if !bindArgs(c, &args, &args.FilePatterns) {
		return
	}
	if args.StainMatrix == nil {
		args.StainMatrix = norm.NewOpStainMatrixDefault()
	}
	var op ops.Operator = args.StainMatrix
	if args.TissueMask != nil {
		op = ops.NewOpSequence(args.TissueMask, args.StainMatrix)
	}
	s.run(c, args, args.FilePatterns, op, nil)
}

type postRunArgs struct {
	FilePatterns []string        `json:"filePatterns"`
	OperatorRaw  json.RawMessage `json:"operator"`
}

// Applies an arbitrary operator, typically a sequence, given as polymorphic JSON
func (s *Server) postRun(c *gin.Context) {
	var args postRunArgs
	if !bindArgs(c, &args, &args.FilePatterns) {
		return
	}
	op, err := parseOperator(args.OperatorRaw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.run(c, args, args.FilePatterns, op, nil)
}

func parseOperator(raw json.RawMessage) (ops.Operator, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, errors.New("missing operator")
	}
	return ops.UnmarshalOperator(raw)
}
