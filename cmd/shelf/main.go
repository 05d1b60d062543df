package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"shelf-go/internal/app"
	"shelf-go/internal/config"
	"shelf-go/internal/model"
	"shelf-go/internal/shelf"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a ShelfApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "ImportDirectory", "RelinkCourse").
func newApp(operation string, args []string) (*app.ShelfApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewShelfApp(cfg, operation, strings.Join(args, " "))
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "shelf",
	Short:        "Local course video library",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s (%s)\n", cfg.LogDir, cfg.LogLevel)
		fmt.Printf("Database:    %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Blobs:       %s %s\n", cfg.Blobs.Type, cfg.Blobs.Root)
		fmt.Printf("Thumbnails:  %s\n", cfg.Thumbnails.Type)
		fmt.Printf("File access: %s\n", cfg.Filesystem.Mode)
		fmt.Printf("Ignore:      %s\n", strings.Join(cfg.Filesystem.Ignore, " "))
		return nil
	},
}

// import commands
var importCmd = &cobra.Command{
	Use:   "import DIR",
	Short: "Import a directory as a course",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		noThumbs, _ := cmd.Flags().GetBool("no-thumbnails")

		a, err := newApp("ImportDirectory", args)
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.ImportDirectory(cmd.Context(), args[0], !noThumbs)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		printImportSummary(summary)
		return nil
	},
}

var importFilesCmd = &cobra.Command{
	Use:   "import-files FILE...",
	Short: "Import selected files as a course",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		base, _ := cmd.Flags().GetString("base")
		noThumbs, _ := cmd.Flags().GetBool("no-thumbnails")

		a, err := newApp("ImportFiles", args)
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.ImportFiles(cmd.Context(), base, args, !noThumbs)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		printImportSummary(summary)
		return nil
	},
}

func printImportSummary(s *shelf.ImportSummary) {
	fmt.Printf("Imported %q (%s): %d module(s), %d video(s)\n",
		s.Course.Title, s.Course.ID, len(s.Modules), len(s.Videos))
}

// courses command
var coursesCmd = &cobra.Command{
	Use:   "courses",
	Short: "List courses",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListCourses", args)
		if err != nil {
			return err
		}
		defer a.Close()

		courses, err := a.Service().ListCourses()
		if err != nil {
			return err
		}

		if len(courses) == 0 {
			fmt.Println("No courses.")
			return nil
		}

		for _, d := range courses {
			r := d.Rollup()
			fmt.Printf("%s  %3d%%  %d/%d  %s\n", d.Course.ID, r.Percent, r.CompletedVideos, r.TotalVideos, d.Course.Title)
		}
		return nil
	},
}

// course command
var courseCmd = &cobra.Command{
	Use:   "course",
	Short: "Manage a course",
}

var courseShowCmd = &cobra.Command{
	Use:   "show COURSE",
	Short: "Show a course's modules and videos",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("GetCourse", args)
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.Service().GetCourse(args[0])
		if err != nil {
			return err
		}

		r := d.Rollup()
		fmt.Printf("%s\n", d.Course.Title)
		if d.Course.Description != "" {
			fmt.Printf("%s\n", d.Course.Description)
		}
		fmt.Printf("%d%% complete (%d/%d)\n", r.Percent, r.CompletedVideos, r.TotalVideos)

		for _, v := range d.ModuleVideos("") {
			printVideoLine("", v, d.Progress[v.ID])
		}
		for _, m := range d.Modules {
			fmt.Printf("\n%s\n", m.Title)
			for _, v := range d.ModuleVideos(m.ID) {
				printVideoLine("  ", v, d.Progress[v.ID])
			}
		}
		return nil
	},
}

func printVideoLine(indent string, v *model.Video, p *model.Progress) {
	state := " "
	switch {
	case p != nil && p.Completed:
		state = "x"
	case p != nil && p.LastPositionSec > shelf.ResumeThresholdSec:
		state = "~"
	}
	missing := ""
	if v.Missing {
		missing = "  [missing]"
	}
	fmt.Printf("%s[%s] %s  %s  %s%s\n", indent, state, v.ID, formatDuration(v.DurationSec), v.Title, missing)
}

func formatDuration(sec float64) string {
	if sec <= 0 {
		return "--:--"
	}
	d := time.Duration(sec * float64(time.Second)).Round(time.Second)
	return d.String()
}

var courseDeleteCmd = &cobra.Command{
	Use:   "delete COURSE",
	Short: "Delete a course and its progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("DeleteCourse", args)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteCourse(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted course %s\n", args[0])
		return nil
	},
}

var courseRenameCmd = &cobra.Command{
	Use:   "rename COURSE TITLE",
	Short: "Rename a course",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("RenameCourse", args)
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.RenameCourse(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Renamed course %s to %q\n", c.ID, c.Title)
		return nil
	},
}

// relink commands
var relinkCmd = &cobra.Command{
	Use:   "relink VIDEO FILE",
	Short: "Point a video at a moved file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("RelinkVideo", args)
		if err != nil {
			return err
		}
		defer a.Close()

		v, err := a.RelinkVideo(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("relink failed: %w", err)
		}
		fmt.Printf("Relinked %q\n", v.Title)
		return nil
	},
}

var relinkCourseCmd = &cobra.Command{
	Use:   "relink-course COURSE FILE...",
	Short: "Match moved files against a course's videos",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("RelinkCourse", args)
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.RelinkCourse(cmd.Context(), args[0], args[1:])
		if err != nil {
			return fmt.Errorf("relink failed: %w", err)
		}

		fmt.Printf("Matched %d video(s)\n", len(s.MatchedIDs))
		for _, id := range s.UnmatchedVideoIDs {
			fmt.Printf("unmatched video: %s\n", id)
		}
		for _, name := range s.UnmatchedFileNames {
			fmt.Printf("unmatched file:  %s\n", name)
		}
		return nil
	},
}

// playback commands
var playCmd = &cobra.Command{
	Use:   "play VIDEO",
	Short: "Resolve a video's source and start playback",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Play", args)
		if err != nil {
			return err
		}
		defer a.Close()

		result, session, err := a.Play(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		switch result.Status {
		case shelf.SourceMissing:
			fmt.Println("File is missing. Use relink to locate it.")
			return nil
		case shelf.SourceNoPermission:
			fmt.Println("Permission to read the file was denied.")
			return nil
		}

		if p, ok := result.Source.(interface{ Path() string }); ok {
			fmt.Printf("Source: %s\n", p.Path())
		} else {
			fmt.Printf("Source: %s\n", result.Source.Name())
		}
		if pos, ok := session.ResumePosition(); ok {
			fmt.Printf("Resume at %s\n", formatDuration(pos))
		}
		return nil
	},
}

var progressCmd = &cobra.Command{
	Use:   "progress VIDEO",
	Short: "Record a playback position",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		position, _ := cmd.Flags().GetFloat64("position")
		duration, _ := cmd.Flags().GetFloat64("duration")

		a, err := newApp("SetProgress", args)
		if err != nil {
			return err
		}
		defer a.Close()

		completed, err := a.ReportPosition(args[0], position, duration)
		if err != nil {
			return err
		}
		if completed {
			fmt.Println("Marked completed.")
		}
		return nil
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete VIDEO",
	Short: "Mark a video as watched",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("MarkCompleted", args)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.MarkCompleted(args[0])
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset VIDEO",
	Short: "Forget a video's progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ResetProgress", args)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.ResetProgress(args[0])
	},
}

// poster command
var posterCmd = &cobra.Command{
	Use:   "poster VIDEO",
	Short: "Write a video's poster image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp("LoadPoster", args)
		if err != nil {
			return err
		}
		defer a.Close()

		v, err := a.Service().GetVideo(args[0])
		if err != nil {
			return err
		}
		if v.PosterBlobKey == "" {
			return fmt.Errorf("video %s has no poster", v.ID)
		}

		if output == "" || output == "-" {
			return a.Service().LoadPoster(v.PosterBlobKey, os.Stdout)
		}
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating %s: %w", output, err)
		}
		if err := a.Service().LoadPoster(v.PosterBlobKey, f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	},
}

// note command
var noteCmd = &cobra.Command{
	Use:   "note VIDEO",
	Short: "Show or replace a video's note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("set") {
			text, _ := cmd.Flags().GetString("set")

			a, err := newApp("UpsertNote", args)
			if err != nil {
				return err
			}
			defer a.Close()

			_, err = a.SetNote(args[0], text)
			return err
		}

		a, err := newApp("GetNote", args)
		if err != nil {
			return err
		}
		defer a.Close()

		note, err := a.Service().GetNote(args[0])
		if err != nil {
			return err
		}
		if note == nil || note.Markdown == "" {
			fmt.Println("No note.")
			return nil
		}
		fmt.Println(note.Markdown)
		return nil
	},
}

// settings command
var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage the completion policy",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the completion policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("GetSettings", args)
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.Service().GetSettings()
		if err != nil {
			return err
		}
		printSettings(s)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change the completion policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch shelf.SettingsPatch
		if cmd.Flags().Changed("threshold") {
			v, _ := cmd.Flags().GetFloat64("threshold")
			patch.CompletionThreshold = &v
		}
		if cmd.Flags().Changed("tail") {
			v, _ := cmd.Flags().GetBool("tail")
			patch.AllowLastSecondsComplete = &v
		}
		if cmd.Flags().Changed("window") {
			v, _ := cmd.Flags().GetInt("window")
			patch.LastSecondsWindow = &v
		}

		a, err := newApp("UpdateSettings", args)
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.UpdateSettings(patch)
		if err != nil {
			return err
		}
		printSettings(s)
		return nil
	},
}

func printSettings(s model.Settings) {
	fmt.Printf("Completion threshold: %.0f%%\n", s.CompletionThreshold*100)
	fmt.Printf("Complete near end:    %t\n", s.AllowLastSecondsComplete)
	fmt.Printf("Last seconds window:  %ds\n", s.LastSecondsWindow)
}

// continue command
var continueCmd = &cobra.Command{
	Use:   "continue",
	Short: "List videos to continue watching",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("ContinueWatching", args)
		if err != nil {
			return err
		}
		defer a.Close()

		items, err := a.Service().ContinueWatching(limit)
		if err != nil {
			return err
		}

		if len(items) == 0 {
			fmt.Println("Nothing in progress.")
			return nil
		}

		for _, it := range items {
			fmt.Printf("%s  %s / %s  %s: %s\n",
				it.Video.ID,
				formatDuration(it.Progress.LastPositionSec),
				formatDuration(it.Video.DurationSec),
				it.Course.Title,
				it.Video.Title,
			)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View library operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("GetHistory", args)
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.Service().History(limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				d := op.FinishedAt.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-16s  %s  %-8s  %-10s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// course subcommands
	courseCmd.AddCommand(courseShowCmd)
	courseCmd.AddCommand(courseDeleteCmd)
	courseCmd.AddCommand(courseRenameCmd)

	// settings subcommands
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsSetCmd.Flags().Float64("threshold", shelf.DefaultCompletionThreshold, "Watched fraction that completes a video (0.8-1.0)")
	settingsSetCmd.Flags().Bool("tail", true, "Complete videos when playback reaches the last seconds")
	settingsSetCmd.Flags().Int("window", shelf.DefaultLastSecondsWindow, "Size of the last seconds window")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().Bool("no-thumbnails", false, "Skip poster and duration capture")
	rootCmd.AddCommand(importFilesCmd)
	importFilesCmd.Flags().String("base", "", "Directory the files' module paths are relative to")
	importFilesCmd.Flags().Bool("no-thumbnails", false, "Skip poster and duration capture")
	rootCmd.AddCommand(coursesCmd)
	rootCmd.AddCommand(courseCmd)
	rootCmd.AddCommand(relinkCmd)
	rootCmd.AddCommand(relinkCourseCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(progressCmd)
	progressCmd.Flags().Float64("position", 0, "Playback position in seconds")
	progressCmd.Flags().Float64("duration", 0, "Media duration in seconds; 0 uses the stored duration")
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(posterCmd)
	posterCmd.Flags().StringP("output", "o", "", "File to write the JPEG to; stdout when empty")
	rootCmd.AddCommand(noteCmd)
	noteCmd.Flags().String("set", "", "Replace the note with this markdown")
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(continueCmd)
	continueCmd.Flags().IntP("limit", "n", shelf.ContinueWatchingLimit, "Maximum number of videos to show")
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
