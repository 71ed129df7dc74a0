package gorm

import (
	"errors"

	"github.com/taskdeck-io/taskdeck"
	stdgorm "gorm.io/gorm"
)

type taskRepository struct {
	db *stdgorm.DB
}

func NewTaskRepository(db *stdgorm.DB) taskdeck.TaskRepository {
	return &taskRepository{db}
}

func (t *taskRepository) Create(task taskdeck.Task) (taskdeck.Task, error) {
	result := t.db.Create(&task)

	return task, result.Error
}

func (t *taskRepository) FindAll() ([]taskdeck.Task, error) {
	var tasks []taskdeck.Task
	result := t.db.Order("id desc").Find(&tasks)

	return tasks, result.Error
}

func (t *taskRepository) FindByStatus(status taskdeck.TaskStatus) ([]taskdeck.Task, error) {
	var tasks []taskdeck.Task
	result := t.db.Where("status = ?", status).Order("id desc").Find(&tasks)

	return tasks, result.Error
}

func (t *taskRepository) Find(taskID uint64) (taskdeck.Task, error) {
	var task taskdeck.Task
	result := t.db.First(&task, taskID)
	if errors.Is(result.Error, stdgorm.ErrRecordNotFound) {
		return taskdeck.Task{}, taskdeck.ErrTaskNotFound
	}

	return task, result.Error
}

func (t *taskRepository) Update(task taskdeck.Task) (taskdeck.Task, error) {
	result := t.db.Save(&task)
	if result.Error != nil {
		return taskdeck.Task{}, result.Error
	}

	return task, nil
}

func (t *taskRepository) Delete(taskID uint64) (bool, error) {
	task := taskdeck.Task{ID: taskID}
	result := t.db.Delete(&task)

	if result.Error != nil {
		return false, result.Error
	}
	return true, nil
}
