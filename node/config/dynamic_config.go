package config

type SealingConfiger interface {
	GetSealingConfig() SealingConfig
	SetSealingConfig(SealingConfig)
}

func (c *Worker) GetSealingConfig() SealingConfig {
	return c.Sealing
}

func (c *Worker) SetSealingConfig(other SealingConfig) {
	c.Sealing = other
}
