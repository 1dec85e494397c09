package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// PromptsConfig contains all prompt configurations loaded from YAML
type PromptsConfig struct {
	Reply  ReplyPrompts  `yaml:"reply"`
	Filter FilterPrompts `yaml:"filter"`
	Image  ImagePrompts  `yaml:"image"`
}

// ReplyPrompts contains reply generation prompts
type ReplyPrompts struct {
	SystemPrompt        string `yaml:"system_prompt"`
	SocialReplyTemplate string `yaml:"social_reply_template"`
	RelatedTemplate     string `yaml:"related_template"`
	ThreadHeader        string `yaml:"thread_header"`
	ThreadLatest        string `yaml:"thread_latest"`
	ThreadInstruction   string `yaml:"thread_instruction"`
}

// FilterPrompts contains ignore classifier prompts
type FilterPrompts struct {
	IgnoreSystemTemplate string `yaml:"ignore_system_template"`
	IgnoreCriteria       string `yaml:"ignore_criteria"`
}

// ImagePrompts contains image prompt generation templates
type ImagePrompts struct {
	SystemPrompt  string `yaml:"system_prompt"`
	ConvoTemplate string `yaml:"convo_template"`
}

// LoadPromptsConfig loads prompts configuration from YAML file
func LoadPromptsConfig(configPath string) (*PromptsConfig, error) {
	// Try multiple paths
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/prompts.yaml",
			"/etc/reply-bridge/prompts.yaml",
		}
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "prompts.yaml"))
		}
	}

	var data []byte
	var loadedPath string
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err == nil {
			data = raw
			loadedPath = p
			break
		}
	}

	if data == nil {
		if configPath != "" {
			return nil, fmt.Errorf("failed to read prompts config %s", configPath)
		}
		log.Info().Msg("no prompts.yaml found, using defaults")
		return DefaultPromptsConfig(), nil
	}

	log.Info().Str("path", loadedPath).Msg("loading prompts")

	var config PromptsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse prompts.yaml: %w", err)
	}

	config.fillDefaults()
	return &config, nil
}

// fillDefaults fills in default values for empty fields
func (c *PromptsConfig) fillDefaults() {
	defaults := DefaultPromptsConfig()

	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}

	fill(&c.Reply.SystemPrompt, defaults.Reply.SystemPrompt)
	fill(&c.Reply.SocialReplyTemplate, defaults.Reply.SocialReplyTemplate)
	fill(&c.Reply.RelatedTemplate, defaults.Reply.RelatedTemplate)
	fill(&c.Reply.ThreadHeader, defaults.Reply.ThreadHeader)
	fill(&c.Reply.ThreadLatest, defaults.Reply.ThreadLatest)
	fill(&c.Reply.ThreadInstruction, defaults.Reply.ThreadInstruction)
	fill(&c.Filter.IgnoreSystemTemplate, defaults.Filter.IgnoreSystemTemplate)
	// IgnoreCriteria may be intentionally empty to disable the classifier
	fill(&c.Image.SystemPrompt, defaults.Image.SystemPrompt)
	fill(&c.Image.ConvoTemplate, defaults.Image.ConvoTemplate)
}

// FormatSocialReply renders the single-message reply prompt
func (c *PromptsConfig) FormatSocialReply(userName, platform, message, related string) string {
	context := ""
	if related != "" {
		context = strings.ReplaceAll(c.Reply.RelatedTemplate, "{{related}}", related)
	}
	result := c.Reply.SocialReplyTemplate
	result = strings.ReplaceAll(result, "{{user_name}}", userName)
	result = strings.ReplaceAll(result, "{{social_platform}}", platform)
	result = strings.ReplaceAll(result, "{{user_message}}", message)
	result = strings.ReplaceAll(result, "{{context}}", context)
	return strings.TrimSpace(result)
}

// FormatIgnoreSystem renders the classifier system prompt for criteria
func (c *PromptsConfig) FormatIgnoreSystem(criteria string) string {
	return strings.ReplaceAll(c.Filter.IgnoreSystemTemplate, "{{criteria}}", criteria)
}

// FormatImagePrompt renders the image prompt request for a message and its reply
func (c *PromptsConfig) FormatImagePrompt(original, reply string) string {
	result := c.Image.ConvoTemplate
	result = strings.ReplaceAll(result, "{{original}}", original)
	result = strings.ReplaceAll(result, "{{reply}}", reply)
	return strings.TrimSpace(result)
}

// DefaultPromptsConfig returns the default prompts configuration
func DefaultPromptsConfig() *PromptsConfig {
	return &PromptsConfig{
		Reply: ReplyPrompts{
			SystemPrompt: `You are Heuman, an AI agent created by Heurist, a decentralized AI compute protocol.
You reply to people who mention you on social media. Keep replies short, friendly and specific to what was said.
Never use hashtags. Never start with a greeting formula. Answer in the language of the user.`,
			SocialReplyTemplate: `{{user_name}} mentioned you on {{social_platform}}:
"{{user_message}}"
{{context}}

Write a reply to {{user_name}}. Output only the reply text.`,
			RelatedTemplate:   "Related post: {{related}}",
			ThreadHeader:      "This is a conversation thread:",
			ThreadLatest:      `The latest reply is from @{{author}}: "{{text}}"`,
			ThreadInstruction: "Please generate a contextually relevant reply that takes into account the entire conversation history.",
		},
		Filter: FilterPrompts{
			IgnoreSystemTemplate: "Determine if user message should be ignored. Criteria: {{criteria}} " +
				"Your output should be in a JSON code block like this ```json {\"ignore\": true or false}``` " +
				"DO NOT explain. DO NOT output anything else.",
			IgnoreCriteria: "Ignore spam, airdrop or giveaway begging, token shilling, " +
				"messages that only tag accounts without saying anything, and abusive messages.",
		},
		Image: ImagePrompts{
			SystemPrompt: "You are a helpful AI assistant. You are an expert in creating prompts for AI art. Your output only contains the prompt texts.",
			ConvoTemplate: `Create a prompt for an image that accompanies a social media reply posted by a male humanoid robot with the heuristai logo as the head.
Specify a realistic, cinematic style. Describe the pose, activity, camera, lighting, and environment. Be direct and avoid metaphors.
The original post is: "{{original}}". The robot reply is: "{{reply}}".
Get inspired by the conversation without following it literally. Use less than 80 words. Only include the prompt and nothing else.`,
		},
	}
}
